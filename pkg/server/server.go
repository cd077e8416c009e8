package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/controller"
	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

const writeTimeout = 10 * time.Second

// Server accepts client connections and hands them to a fixed pool of workers.
// Each worker serves one connection at a time, request by request.
type Server struct {
	cfg     *config.Config
	handler *controller.CommandHandler
	conns   *ConnectionManager

	ln       net.Listener
	workerCh chan *Connection
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewServer(cfg *config.Config, api types.StreamAPI) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	// Each admitted connection must be able to get a worker.
	limit := cfg.MaxConnections
	if limit <= 0 || limit > cfg.WorkerPoolSize {
		limit = cfg.WorkerPoolSize
	}
	return &Server{
		cfg:      cfg,
		handler:  controller.NewCommandHandler(api),
		conns:    NewConnectionManager(limit),
		workerCh: make(chan *Connection, limit),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RunServer serves api on the configured port until ctx is canceled.
func RunServer(ctx context.Context, cfg *config.Config, api types.StreamAPI) error {
	if cfg.EnableExporter {
		exporter := metrics.StartMetricsServer(cfg.ExporterPort)
		defer func() {
			if err := exporter.Close(); err != nil {
				util.Warn("close exporter: %v", err)
			}
		}()
	} else {
		util.Info("Exporter disabled")
	}

	srv := NewServer(cfg, api)
	if err := srv.Listen(fmt.Sprintf(":%d", cfg.BrokerPort)); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	util.Info("Broker listening on %s (workers=%d, compression=%s)", ln.Addr(), s.cfg.WorkerPoolSize, s.cfg.CompressionType)
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop. It returns nil once Shutdown is called.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("server is not listening")
	}

	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			util.Warn("Accept error: %v", err)
			continue
		}

		c, err := s.conns.Add(conn)
		if err != nil {
			util.Warn("Rejecting %s: %v", conn.RemoteAddr(), err)
			go s.reject(conn, err)
			continue
		}
		if s.ctx.Err() != nil {
			s.conns.Remove(conn)
			_ = conn.Close()
			return nil
		}
		s.workerCh <- c
	}
}

func (s *Server) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.workerCh:
			s.HandleConnection(c)
		}
	}
}

// reject answers a connection over the limit with an error and closes it.
func (s *Server) reject(conn net.Conn, cause error) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	resp := &controller.Response{Code: controller.CodeStorageUnavailable, Error: cause.Error()}
	_ = controller.WriteMessage(conn, s.cfg.CompressionType, resp)
}

type inbound struct {
	req *controller.Request
	err error
}

// HandleConnection serves requests from one client until it disconnects.
// Requests run under a context canceled as soon as the client goes away, so
// a blocked read does not deliver entries to a consumer that left.
func (s *Server) HandleConnection(c *Connection) {
	conn := c.conn
	ctx, cancel := context.WithCancel(s.ctx)
	defer func() {
		cancel()
		s.conns.Remove(conn)
		_ = conn.Close()
		util.Debug("client %s (%s) disconnected after %d requests, last active %s",
			c.ctx.ID, c.ctx.RemoteAddr, c.ctx.Requests(), c.LastActive().Format(time.RFC3339))
	}()
	util.Debug("client %s connected from %s", c.ctx.ID, c.ctx.RemoteAddr)

	readTimeout := time.Duration(s.cfg.ReadTimeoutMS) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}

	reqs := make(chan inbound)
	go s.readRequests(ctx, cancel, c, reqs)

	for {
		var in inbound
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reqs:
			if !ok {
				return
			}
			in = r
		}

		if in.err != nil {
			// The frame was consumed whole, so the stream is still aligned.
			if !s.writeResponse(c, &controller.Response{Code: controller.CodeBadRequest, Error: in.err.Error()}) {
				return
			}
			continue
		}
		c.Touch()

		// The idle timeout only runs while the client owes us a request.
		_ = conn.SetReadDeadline(time.Time{})
		resp := s.handler.HandleRequest(ctx, c.ctx, in.req)
		if !s.writeResponse(c, resp) {
			return
		}
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
}

// readRequests reads frames off c and hands them over one at a time. It
// cancels the connection context once the client is gone.
func (s *Server) readRequests(ctx context.Context, cancel context.CancelFunc, c *Connection, out chan<- inbound) {
	defer close(out)
	defer cancel()
	for {
		var req controller.Request
		err := controller.ReadMessage(c.conn, &req)
		in := inbound{req: &req}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, util.ErrFrameTooLarge) || controller.CodeOf(err) != controller.CodeBadRequest {
				util.Warn("client %s read error: %v", c.ctx.ID, err)
				return
			}
			in = inbound{err: err}
		}

		select {
		case out <- in:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeResponse(c *Connection, resp *controller.Response) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := controller.WriteMessage(c.conn, s.cfg.CompressionType, resp); err != nil {
		if s.ctx.Err() == nil {
			util.Warn("client %s write error: %v", c.ctx.ID, err)
		}
		return false
	}
	return true
}

// Shutdown stops accepting, cancels in-flight requests, closes every
// connection and waits for the workers to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.conns.CloseAll()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		util.Info("Broker server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
