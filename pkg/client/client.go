package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/controller"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

var _ types.StreamAPI = (*Client)(nil)

// Client speaks the broker wire protocol over a single TCP connection.
// Requests are serialized; the connection is redialed after any I/O failure.
type Client struct {
	addr        string
	dialTimeout time.Duration
	compression string

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

type Option func(*Client)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithCompression sets the codec used for requests. Responses carry their own.
func WithCompression(codec string) Option {
	return func(c *Client) { c.compression = codec }
}

// New returns a client that dials addr on first use.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		dialTimeout: 5 * time.Second,
		compression: util.CompressionNone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to addr and checks the broker answers.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c := New(addr, opts...)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func FromConfig(ctx context.Context, cfg *config.ClientConfig) (*Client, error) {
	return Dial(ctx, cfg.BrokerAddr,
		WithDialTimeout(cfg.DialTimeout.Duration),
		WithCompression(cfg.Compression),
	)
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) connectLocked(ctx context.Context) (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	util.Debug("connected to broker %s", c.addr)
	c.conn = conn
	return conn, nil
}

func (c *Client) do(ctx context.Context, req *controller.Request) (*controller.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, types.ErrClosed
	}

	conn, err := c.connectLocked(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %w", types.ErrStorageUnavailable, c.addr, err)
	}

	_ = conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	var resp controller.Response
	err = controller.WriteMessage(conn, c.compression, req)
	if err == nil {
		err = controller.ReadMessage(conn, &resp)
	}
	if err != nil {
		// A half-finished exchange leaves the stream misaligned.
		_ = c.dropLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", types.ErrStorageUnavailable, req.Op, c.addr, err)
	}
	return &resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpPing})
	if err != nil {
		return err
	}
	return resp.Err("", "")
}

func (c *Client) Append(ctx context.Context, stream string, fields types.Fields) (types.EntryID, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpAppend, Stream: stream, Fields: controller.FromFields(fields)})
	if err != nil {
		return types.ZeroID, err
	}
	if err := resp.Err(stream, ""); err != nil {
		return types.ZeroID, err
	}
	return types.ParseEntryID(resp.ID)
}

func (c *Client) ReadRange(ctx context.Context, stream string, after types.EntryID, limit int) ([]types.Entry, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpReadRange, Stream: stream, After: after.String(), Count: limit})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(stream, ""); err != nil {
		return nil, err
	}
	return controller.ToEntries(resp.Entries)
}

func (c *Client) Trim(ctx context.Context, stream string, maxLen int) (int, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpTrim, Stream: stream, MaxLen: maxLen})
	if err != nil {
		return 0, err
	}
	return resp.Count, resp.Err(stream, "")
}

func (c *Client) CreateGroup(ctx context.Context, stream, group string, start types.StartPosition) (types.CreateResult, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpCreateGroup, Stream: stream, Group: group, Start: start.String()})
	if err != nil {
		return types.Created, err
	}
	if err := resp.Err(stream, group); err != nil {
		return types.Created, err
	}
	if resp.Flag {
		return types.AlreadyExisted, nil
	}
	return types.Created, nil
}

func (c *Client) DeleteGroup(ctx context.Context, stream, group string) (bool, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpDeleteGroup, Stream: stream, Group: group})
	if err != nil {
		return false, err
	}
	return resp.Flag, resp.Err(stream, group)
}

func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]types.Delivery, error) {
	resp, err := c.do(ctx, &controller.Request{
		Op:       controller.OpReadGroup,
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		Count:    count,
		BlockMS:  block.Milliseconds(),
	})
	return deliveries(resp, err, stream, group)
}

func (c *Client) ReadPending(ctx context.Context, stream, group, consumer string, count int) ([]types.Delivery, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpReadPending, Stream: stream, Group: group, Consumer: consumer, Count: count})
	return deliveries(resp, err, stream, group)
}

func (c *Client) Ack(ctx context.Context, stream, group string, ids ...types.EntryID) (int, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpAck, Stream: stream, Group: group, IDs: controller.FormatIDs(ids)})
	if err != nil {
		return 0, err
	}
	return resp.Count, resp.Err(stream, group)
}

func (c *Client) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]types.Delivery, error) {
	resp, err := c.do(ctx, &controller.Request{
		Op:        controller.OpClaim,
		Stream:    stream,
		Group:     group,
		Consumer:  consumer,
		MinIdleMS: minIdle.Milliseconds(),
		Count:     count,
	})
	return deliveries(resp, err, stream, group)
}

func (c *Client) Pending(ctx context.Context, stream, group string) ([]types.PendingEntry, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpPending, Stream: stream, Group: group})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(stream, group); err != nil {
		return nil, err
	}
	return controller.ToPending(resp.Pending)
}

func (c *Client) Groups(ctx context.Context, stream string) ([]types.GroupInfo, error) {
	resp, err := c.do(ctx, &controller.Request{Op: controller.OpGroups, Stream: stream})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(stream, ""); err != nil {
		return nil, err
	}
	return controller.ToGroups(resp.Groups)
}

// deliveries decodes a delivery response. A lost-entry error still returns
// the entries that were delivered alongside it.
func deliveries(resp *controller.Response, err error, stream, group string) ([]types.Delivery, error) {
	if err != nil {
		return nil, err
	}
	ds, decodeErr := controller.ToDeliveries(resp.Entries)
	if decodeErr != nil {
		return nil, decodeErr
	}
	return ds, resp.Err(stream, group)
}
