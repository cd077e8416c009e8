package types

import (
	"fmt"
	"strings"
	"time"
)

// StartPosition selects where a new consumer group begins reading.
type StartPosition int

const (
	// StartTail delivers only entries appended after the group is created.
	StartTail StartPosition = iota
	// StartBeginning replays the whole retained log.
	StartBeginning
)

func (p StartPosition) String() string {
	if p == StartBeginning {
		return "beginning"
	}
	return "tail"
}

// ParseStartPosition accepts beginning/0 and tail/$.
func ParseStartPosition(s string) (StartPosition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginning", "earliest", "0":
		return StartBeginning, nil
	case "tail", "latest", "$", "":
		return StartTail, nil
	}
	return StartTail, fmt.Errorf("unknown start position %q", s)
}

// CreateResult distinguishes a fresh group from an existing one. Neither is an error.
type CreateResult int

const (
	Created CreateResult = iota
	AlreadyExisted
)

func (r CreateResult) String() string {
	if r == AlreadyExisted {
		return "already-existed"
	}
	return "created"
}

// PendingEntry is a PEL record: delivered to Consumer, not yet acknowledged.
type PendingEntry struct {
	ID            EntryID
	Consumer      string
	DeliveryCount int
	LastDelivery  time.Time
}

// Idle reports how long the entry has gone without a delivery.
func (p PendingEntry) Idle(now time.Time) time.Duration {
	return now.Sub(p.LastDelivery)
}

// GroupInfo summarizes a consumer group.
type GroupInfo struct {
	Name      string
	Cursor    EntryID
	Pending   int
	Consumers int
}
