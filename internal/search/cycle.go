package search

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type State int

const (
	Idle       State = iota
	Debouncing       // timer running
	Awaiting         // request in flight
)

func (s State) String() string {
	switch s {
	case Debouncing:
		return "debouncing"
	case Awaiting:
		return "awaiting"
	default:
		return "idle"
	}
}

var lastID atomic.Int64

func nextID() int64 {
	return lastID.Add(1)
}

// debounceMsg fires when a debounce timer elapses.
type debounceMsg struct {
	id  int64
	tag int
}

// cycle is the Idle -> Debouncing -> Awaiting -> Idle machine shared by the
// controllers.
type cycle struct {
	id     int64
	tag    int
	delay  time.Duration
	state  State
	token  uuid.UUID
	cancel context.CancelFunc
	closed bool
}

func newCycle(delay time.Duration) cycle {
	return cycle{id: nextID(), delay: delay}
}

func (c *cycle) State() State { return c.state }

func (c *cycle) Loading() bool { return c.state == Awaiting }

// restart abandons any timer or request and starts a new timer.
func (c *cycle) restart() tea.Cmd {
	c.drop()
	c.tag++
	c.state = Debouncing
	id, tag := c.id, c.tag
	return tea.Tick(c.delay, func(time.Time) tea.Msg {
		return debounceMsg{id: id, tag: tag}
	})
}

// stop abandons any timer or request and goes idle.
func (c *cycle) stop() {
	c.drop()
	c.tag++
	c.state = Idle
}

func (c *cycle) drop() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.token = uuid.Nil
}

// elapsed reports whether msg is the live timer of this cycle.
func (c *cycle) elapsed(msg debounceMsg) bool {
	if c.closed || msg.id != c.id || msg.tag != c.tag || c.state != Debouncing {
		return false
	}
	c.state = Idle
	return true
}

// begin marks a request as outstanding and returns its context and token.
// Any earlier request is cancelled.
func (c *cycle) begin(timeout time.Duration) (context.Context, uuid.UUID) {
	c.drop()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	c.cancel = cancel
	c.token = uuid.New()
	c.state = Awaiting
	return ctx, c.token
}

// settle reports whether a response carrying token answers the outstanding
// request. A matching response returns the cycle to Idle.
func (c *cycle) settle(id int64, token uuid.UUID) bool {
	if c.closed || id != c.id || token == uuid.Nil || token != c.token {
		return false
	}
	c.drop()
	c.state = Idle
	return true
}

func (c *cycle) close() {
	c.stop()
	c.closed = true
}
