// Package search holds the debounced search controllers that sit between a
// picker's input box and a remote directory.
//
// Controllers run on the bubbletea event loop. Every operation happens inside
// Update or a method called from it, so none of them lock. Timers and network
// responses come back as messages tagged with the controller ID and either the
// debounce generation or the request token; anything that does not match the
// controller's current state is dropped.
package search

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chatpick/internal/logging"
	"chatpick/internal/model"
)

// PeerSearcher runs a global people search.
type PeerSearcher interface {
	SearchPeers(ctx context.Context, query string, limit int) (model.Found, error)
}

// TopicSearcher runs one page of a topic search inside a forum.
type TopicSearcher interface {
	SearchTopics(ctx context.Context, forum, query string, cursor model.TopicCursor, limit int) ([]model.Topic, error)
}

// Controller is what a picker needs from a search controller.
type Controller interface {
	SetQuery(q string) tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	Query() string
	State() State
	Loading() bool
	// LoadMore asks for the next page. The bool reports whether more rows
	// may still arrive for the current query.
	LoadMore() (tea.Cmd, bool)
	Close()
}

const (
	DefaultDelay     = 300 * time.Millisecond
	DefaultLimit     = 50
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 64
)

type Options struct {
	// Delay is how long the query must stay unchanged before a request goes out.
	Delay time.Duration
	// Limit is the number of rows asked for per request.
	Limit int
	// Timeout bounds each remote request.
	Timeout time.Duration
	// CacheSize caps the global search cache. 0 keeps every response.
	CacheSize int
	Logger    *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Delay:     DefaultDelay,
		Limit:     DefaultLimit,
		Timeout:   DefaultTimeout,
		CacheSize: DefaultCacheSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}
