package search

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"chatpick/internal/model"
)

// TopicDelivery carries one page of topics. Append is set for continuation
// pages; the first page replaces whatever the consumer showed.
type TopicDelivery struct {
	Query     string
	Topics    []model.Topic
	Append    bool
	AllLoaded bool
	Err       error
}

type topicsFoundMsg struct {
	id     int64
	token  uuid.UUID
	query  string
	cursor model.TopicCursor
	topics []model.Topic
	err    error
}

// TopicSearch searches topics inside one forum, a page at a time. It has no
// cache; paging state is reset whenever the query changes.
type TopicSearch struct {
	cycle
	searcher  TopicSearcher
	forum     string
	deliver   func(TopicDelivery)
	limit     int
	timeout   time.Duration
	query     string
	cursor    model.TopicCursor
	allLoaded bool
	log       *slog.Logger
}

var _ Controller = (*TopicSearch)(nil)

func NewTopicSearch(searcher TopicSearcher, forum string, deliver func(TopicDelivery), opts Options) *TopicSearch {
	opts = opts.withDefaults()
	if deliver == nil {
		deliver = func(TopicDelivery) {}
	}
	return &TopicSearch{
		cycle:    newCycle(opts.Delay),
		searcher: searcher,
		forum:    forum,
		deliver:  deliver,
		limit:    opts.Limit,
		timeout:  opts.Timeout,
		log:      opts.Logger.With("controller", "topics", "forum", forum),
	}
}

func (t *TopicSearch) Query() string { return t.query }

func (t *TopicSearch) Forum() string { return t.forum }

func (t *TopicSearch) AllLoaded() bool { return t.allLoaded }

func (t *TopicSearch) SetQuery(q string) tea.Cmd {
	if t.closed || q == t.query {
		return nil
	}
	t.query = q
	t.cursor = model.TopicCursor{}
	t.allLoaded = false
	if q == "" {
		t.stop()
		t.deliver(TopicDelivery{})
		return nil
	}
	return t.restart()
}

func (t *TopicSearch) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case debounceMsg:
		if !t.elapsed(msg) {
			return nil
		}
		return t.request()

	case topicsFoundMsg:
		if msg.id != t.id {
			return nil
		}
		if !t.settle(msg.id, msg.token) {
			t.log.Debug("dropping stale page", "query", msg.query)
			return nil
		}
		appending := !msg.cursor.IsZero()
		if msg.err != nil {
			t.log.Warn("topic search failed", "query", msg.query, "error", msg.err)
			t.allLoaded = true
			t.deliver(TopicDelivery{Query: msg.query, Append: appending, AllLoaded: true, Err: msg.err})
			return nil
		}
		if len(msg.topics) == 0 {
			t.allLoaded = true
		} else {
			t.cursor = model.CursorAfter(msg.topics[len(msg.topics)-1])
		}
		t.log.Debug("page done", "query", msg.query, "topics", len(msg.topics), "all_loaded", t.allLoaded)
		t.deliver(TopicDelivery{
			Query:     msg.query,
			Topics:    msg.topics,
			Append:    appending,
			AllLoaded: t.allLoaded,
		})
	}
	return nil
}

// LoadMore requests the page after the last one delivered. Nothing is sent
// while a timer or request is pending.
func (t *TopicSearch) LoadMore() (tea.Cmd, bool) {
	if t.closed || t.query == "" || t.allLoaded {
		return nil, false
	}
	if t.state != Idle {
		return nil, true
	}
	return t.request(), true
}

func (t *TopicSearch) request() tea.Cmd {
	ctx, token := t.begin(t.timeout)
	id, searcher := t.id, t.searcher
	forum, q, cursor, limit := t.forum, t.query, t.cursor, t.limit
	t.log.Debug("searching topics", "query", q, "offset_date", cursor.OffsetDate, "token", token)
	return func() tea.Msg {
		topics, err := searcher.SearchTopics(ctx, forum, q, cursor, limit)
		return topicsFoundMsg{id: id, token: token, query: q, cursor: cursor, topics: topics, err: err}
	}
}

func (t *TopicSearch) Close() { t.close() }
