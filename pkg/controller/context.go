package controller

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientContext is the per-connection state the handler keeps across requests.
type ClientContext struct {
	ID         string
	RemoteAddr string
	Connected  time.Time

	mu        sync.Mutex
	requests  int
	consumers map[string]struct{}
}

func NewClientContext(remoteAddr string) *ClientContext {
	return &ClientContext{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		Connected:  time.Now(),
		consumers:  make(map[string]struct{}),
	}
}

// Track records a served request and the consumer name it used, if any.
func (ctx *ClientContext) Track(consumer string) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.requests++
	if consumer != "" {
		ctx.consumers[consumer] = struct{}{}
	}
}

func (ctx *ClientContext) Requests() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.requests
}

// Consumers lists the consumer names seen on this connection.
func (ctx *ClientContext) Consumers() []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]string, 0, len(ctx.consumers))
	for c := range ctx.consumers {
		out = append(out, c)
	}
	return out
}
