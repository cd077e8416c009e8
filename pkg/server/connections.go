package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/controller"
	"github.com/downfa11-org/xstream/pkg/metrics"
	"go.uber.org/atomic"
)

// ConnectionManager tracks live client connections up to a fixed limit.
type ConnectionManager struct {
	mu      sync.Mutex
	conns   map[net.Conn]*Connection
	maxConn int
}

type Connection struct {
	conn       net.Conn
	ctx        *controller.ClientContext
	lastActive atomic.Time
}

func NewConnectionManager(maxConn int) *ConnectionManager {
	return &ConnectionManager{
		conns:   make(map[net.Conn]*Connection),
		maxConn: maxConn,
	}
}

func (cm *ConnectionManager) Add(conn net.Conn) (*Connection, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if len(cm.conns) >= cm.maxConn {
		return nil, fmt.Errorf("maximum connections (%d) reached", cm.maxConn)
	}
	c := &Connection{
		conn: conn,
		ctx:  controller.NewClientContext(conn.RemoteAddr().String()),
	}
	c.Touch()
	cm.conns[conn] = c
	metrics.ActiveConnections.Set(float64(len(cm.conns)))
	return c, nil
}

func (cm *ConnectionManager) Remove(conn net.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.conns[conn]; ok {
		delete(cm.conns, conn)
		metrics.ActiveConnections.Set(float64(len(cm.conns)))
	}
}

func (cm *ConnectionManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// CloseAll closes every tracked connection. Their handlers remove them.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for conn := range cm.conns {
		_ = conn.Close()
	}
}

func (c *Connection) Context() *controller.ClientContext { return c.ctx }
func (c *Connection) Touch()                             { c.lastActive.Store(time.Now()) }
func (c *Connection) LastActive() time.Time              { return c.lastActive.Load() }
