package telemetry

import (
	"time"

	"go.uber.org/atomic"
)

// Generator produces the demo sensor series: value = 42.0 + i*0.1.
type Generator struct {
	source string
	next   atomic.Uint64
	now    func() time.Time
}

func NewGenerator(source string) *Generator {
	return &Generator{source: source, now: time.Now}
}

// WithClock replaces the timestamp source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func (g *Generator) Next() Record {
	i := g.next.Inc() - 1
	return Record{
		ID:          i,
		Source:      g.source,
		Value:       42.0 + float64(i)*0.1,
		TimestampMS: g.now().UnixMilli(),
	}
}

// Encode returns the next record in wire form.
func (g *Generator) Encode() ([]byte, error) {
	return g.Next().Marshal(), nil
}
