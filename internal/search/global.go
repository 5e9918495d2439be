package search

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"chatpick/internal/model"
)

// Delivery carries the rows for a query to the consumer. A transport failure
// arrives as an empty Found with Err set. Clearing the query delivers the
// zero Delivery.
type Delivery struct {
	Query  string
	Found  model.Found
	Cached bool
	Err    error
}

type peersFoundMsg struct {
	id    int64
	token uuid.UUID
	query string
	found model.Found
	err   error
}

// Debouncer is the global people search controller. It waits for the query
// to settle, answers repeated queries from its cache and keeps at most one
// request in flight.
type Debouncer struct {
	cycle
	searcher PeerSearcher
	deliver  func(Delivery)
	limit    int
	timeout  time.Duration
	query    string
	cache    *resultCache
	log      *slog.Logger
}

var _ Controller = (*Debouncer)(nil)

// NewDebouncer returns a controller that sends results to deliver.
func NewDebouncer(searcher PeerSearcher, deliver func(Delivery), opts Options) *Debouncer {
	opts = opts.withDefaults()
	if deliver == nil {
		deliver = func(Delivery) {}
	}
	return &Debouncer{
		cycle:    newCycle(opts.Delay),
		searcher: searcher,
		deliver:  deliver,
		limit:    opts.Limit,
		timeout:  opts.Timeout,
		cache:    newResultCache(opts.CacheSize),
		log:      opts.Logger.With("controller", "global"),
	}
}

func (d *Debouncer) Query() string { return d.query }

// SetQuery records q and returns the debounce timer command. An empty query
// cancels everything and clears the consumer's rows.
func (d *Debouncer) SetQuery(q string) tea.Cmd {
	if d.closed || q == d.query {
		return nil
	}
	d.query = q
	if q == "" {
		d.stop()
		d.deliver(Delivery{})
		return nil
	}
	return d.restart()
}

func (d *Debouncer) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case debounceMsg:
		if !d.elapsed(msg) {
			return nil
		}
		return d.lookup()

	case peersFoundMsg:
		if msg.id != d.id {
			return nil
		}
		if !d.settle(msg.id, msg.token) {
			d.log.Debug("dropping stale response", "query", msg.query)
			return nil
		}
		if msg.err != nil {
			d.log.Warn("search failed", "query", msg.query, "error", msg.err)
			d.deliver(Delivery{Query: msg.query, Err: msg.err})
			return nil
		}
		d.cache.put(msg.query, msg.found)
		d.log.Debug("search done", "query", msg.query, "results", msg.found.Len())
		d.deliver(Delivery{Query: msg.query, Found: msg.found})
	}
	return nil
}

// lookup serves the current query from the cache or sends it to the searcher.
func (d *Debouncer) lookup() tea.Cmd {
	q := d.query
	if found, ok := d.cache.get(q); ok {
		d.log.Debug("cache hit", "query", q)
		d.deliver(Delivery{Query: q, Found: found, Cached: true})
		return nil
	}

	ctx, token := d.begin(d.timeout)
	id, searcher, limit := d.id, d.searcher, d.limit
	d.log.Debug("searching", "query", q, "token", token)
	return func() tea.Msg {
		found, err := searcher.SearchPeers(ctx, q, limit)
		return peersFoundMsg{id: id, token: token, query: q, found: found, err: err}
	}
}

// LoadMore reports false: global search returns a single page.
func (d *Debouncer) LoadMore() (tea.Cmd, bool) { return nil, false }

func (d *Debouncer) CacheStats() CacheStats { return d.cache.stats() }

// Close cancels any timer or request. Messages arriving afterwards are ignored.
func (d *Debouncer) Close() { d.close() }
