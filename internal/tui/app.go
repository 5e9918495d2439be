package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chatpick/internal/gmail"
	"chatpick/internal/logging"
	"chatpick/internal/model"
	"chatpick/internal/search"
)

type viewState int

const (
	viewLoading viewState = iota // reading local rows
	viewPicker                   // search box and results
	viewBody                     // topic preview
)

// Mode selects what the picker searches.
type Mode int

const (
	ModeContacts Mode = iota
	ModeTopics
)

const (
	statusTTL         = 2 * time.Second
	defaultLocalLimit = 200
)

// LocalSource lists what is already in the local store. It fills the picker
// before anything is typed.
type LocalSource interface {
	ListPeers(ctx context.Context, limit int) ([]model.Peer, error)
	SearchTopics(ctx context.Context, forum, query string, cursor model.TopicCursor, limit int) ([]model.Topic, error)
}

type Options struct {
	Mode   Mode
	Forum  string
	People search.PeerSearcher
	Topics search.TopicSearcher
	Local  LocalSource
	// LocalLimit caps the rows read from Local. Defaults to 200.
	LocalLimit int
	// Bodies fetches a message body for topic previews. When nil the
	// preview falls back to the stored snippet.
	Bodies func(ctx context.Context, messageID string) (string, error)
	// OpenURL defaults to gmail.OpenBrowser.
	OpenURL       func(url string) error
	PeopleOptions search.Options
	TopicOptions  search.Options
	// Query is typed into the search box on start.
	Query  string
	Logger *slog.Logger
}

// Selection is the row the user picked with enter.
type Selection struct {
	Kind  string // user, group or topic
	ID    string
	Title string
	Forum string
}

// String renders s as one tab-separated line for shell pipelines.
func (s Selection) String() string {
	fields := []string{s.Kind, s.ID, s.Title}
	if s.Forum != "" {
		fields = append(fields, s.Forum)
	}
	return strings.Join(fields, "\t")
}

type AppModel struct {
	opts Options
	ctrl search.Controller
	log  *slog.Logger

	view      viewState
	status    string
	statusSeq int
	// pending collects commands queued by delivery callbacks.
	pending []tea.Cmd

	local     []row
	delivered []row
	allLoaded bool

	selection *Selection

	previews   map[string]string
	previewKey string

	input    textinput.Model
	results  list.Model
	spin     spinner.Model
	bodyView viewport.Model

	width, height int
}

// NewAppModel returns a pointer because the search controller delivers into
// the model through bound methods.
func NewAppModel(opts Options) *AppModel {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.OpenURL == nil {
		opts.OpenURL = gmail.OpenBrowser
	}
	if opts.LocalLimit <= 0 {
		opts.LocalLimit = defaultLocalLimit
	}

	ti := textinput.New()
	ti.Prompt = promptStyle.Render("› ")
	ti.Focus()
	if opts.Mode == ModeTopics {
		ti.Placeholder = "Search topics in " + opts.Forum
	} else {
		ti.Placeholder = "Search people"
	}

	l := list.New(nil, rowDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := &AppModel{
		opts:     opts,
		log:      opts.Logger,
		view:     viewLoading,
		previews: make(map[string]string),
		input:    ti,
		results:  l,
		spin:     sp,
		bodyView: viewport.New(0, 0),
	}

	popts := opts.PeopleOptions
	popts.Logger = opts.Logger
	topts := opts.TopicOptions
	topts.Logger = opts.Logger
	if opts.Mode == ModeTopics {
		m.ctrl = search.NewTopicSearch(opts.Topics, opts.Forum, m.onTopics, topts)
	} else {
		m.ctrl = search.NewDebouncer(opts.People, m.onPeers, popts)
	}
	return m
}

// Selection returns the picked row, if the user picked one.
func (m *AppModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// Close stops the search controller.
func (m *AppModel) Close() {
	if d, ok := m.ctrl.(*search.Debouncer); ok {
		s := d.CacheStats()
		m.log.Debug("search cache", "entries", s.Entries, "hits", s.Hits, "misses", s.Misses)
	}
	m.ctrl.Close()
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadLocalCmd(), m.spin.Tick, textinput.Blink)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.results.SetSize(msg.Width, msg.Height-6) // header, input, status, footer
		m.bodyView.Width = msg.Width
		m.bodyView.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case localLoadedMsg:
		if msg.err != nil {
			m.log.Warn("loading local rows failed", "error", msg.err)
			m.setStatus(fmt.Sprintf("Local store unavailable: %v", msg.err))
		}
		m.local = msg.rows
		m.view = viewPicker
		var cmd tea.Cmd
		if m.opts.Query != "" {
			m.input.SetValue(m.opts.Query)
			m.input.CursorEnd()
			cmd = m.ctrl.SetQuery(strings.TrimSpace(m.opts.Query))
		}
		m.refresh()
		return m, m.flush(cmd)

	case bodyFetchedMsg:
		if msg.err != nil {
			m.log.Warn("fetching body failed", "key", msg.key, "error", msg.err)
			if msg.key == m.previewKey {
				m.previewKey = ""
			}
			m.setStatus(fmt.Sprintf("Failed to load body: %v", msg.err))
			return m, m.flush(nil)
		}
		m.previews[msg.key] = msg.body
		if msg.key == m.previewKey {
			m.showPreview(msg.body)
		}
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Open failed: %v", msg.err))
		}
		return m, m.flush(nil)

	case statusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	// Debounce timers and search responses, then cursor blinks and
	// viewport scrolling for whichever view is active.
	cmd := m.ctrl.Update(msg)
	var sub tea.Cmd
	if m.view == viewBody {
		m.bodyView, sub = m.bodyView.Update(msg)
	} else {
		m.input, sub = m.input.Update(msg)
	}
	return m, m.flush(tea.Batch(cmd, sub))
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewLoading:
		if key == "esc" {
			return m, tea.Quit
		}
		return m, nil

	case viewBody:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewPicker
			m.previewKey = ""
			return m, nil
		case "ctrl+o":
			return m, m.openSelected()
		}
		var cmd tea.Cmd
		m.bodyView, cmd = m.bodyView.Update(msg)
		return m, cmd
	}

	switch key {
	case "esc":
		if m.input.Value() == "" {
			return m, tea.Quit
		}
		m.input.Reset()
		return m, m.queryChanged()
	case "enter":
		r, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		sel := r.selection()
		m.selection = &sel
		return m, tea.Quit
	case "tab":
		return m, m.preview()
	case "ctrl+o":
		return m, m.openSelected()
	case "up", "ctrl+p":
		m.results.CursorUp()
		return m, nil
	case "down", "ctrl+n":
		m.results.CursorDown()
		return m, m.maybeLoadMore()
	case "pgup":
		m.results.PrevPage()
		return m, nil
	case "pgdown":
		m.results.NextPage()
		return m, m.maybeLoadMore()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, tea.Batch(cmd, m.queryChanged())
}

// queryChanged passes the trimmed input to the controller when it differs
// from the current query.
func (m *AppModel) queryChanged() tea.Cmd {
	q := strings.TrimSpace(m.input.Value())
	if q == m.ctrl.Query() {
		return nil
	}
	m.delivered = nil
	m.allLoaded = false
	cmd := m.ctrl.SetQuery(q)
	m.results.ResetSelected()
	m.refresh()
	return m.flush(cmd)
}

// maybeLoadMore asks for the next page once the cursor reaches the last row.
func (m *AppModel) maybeLoadMore() tea.Cmd {
	n := len(m.results.Items())
	if n == 0 || m.results.Index() < n-1 {
		return nil
	}
	cmd, more := m.ctrl.LoadMore()
	if !more {
		m.allLoaded = true
	}
	return cmd
}

func (m *AppModel) onPeers(d search.Delivery) {
	if d.Err != nil {
		m.delivered = nil
		m.setStatus(fmt.Sprintf("Search failed: %v", d.Err))
		m.refresh()
		return
	}
	m.delivered = foundRows(d.Found)
	m.refresh()
}

func (m *AppModel) onTopics(d search.TopicDelivery) {
	m.allLoaded = d.AllLoaded
	if d.Err != nil {
		m.setStatus(fmt.Sprintf("Search failed: %v", d.Err))
		if !d.Append {
			m.delivered = nil
		}
		m.refresh()
		return
	}
	if d.Append {
		m.delivered = append(m.delivered, topicRows(d.Topics)...)
	} else {
		m.delivered = topicRows(d.Topics)
	}
	m.refresh()
}

// rows is what the picker shows for the current query.
func (m *AppModel) rows() []row {
	q := m.ctrl.Query()
	if q == "" {
		return m.local
	}
	return mergeRows(filterRows(m.local, q), m.delivered)
}

func (m *AppModel) refresh() {
	idx := m.results.Index()
	m.results.SetItems(toItems(m.rows()))
	if n := len(m.results.Items()); idx >= n && n > 0 {
		m.results.Select(n - 1)
	}
}

func (m *AppModel) selectedRow() (row, bool) {
	r, ok := m.results.SelectedItem().(row)
	return r, ok
}

// setStatus shows s and queues the command that clears it.
func (m *AppModel) setStatus(s string) {
	m.status = s
	m.statusSeq++
	m.pending = append(m.pending, clearStatusAfter(statusTTL, m.statusSeq))
}

// flush batches cmd with anything queued by delivery callbacks.
func (m *AppModel) flush(cmd tea.Cmd) tea.Cmd {
	if len(m.pending) == 0 {
		return cmd
	}
	cmds := append(m.pending, cmd)
	m.pending = nil
	return tea.Batch(cmds...)
}

func (m *AppModel) preview() tea.Cmd {
	r, ok := m.selectedRow()
	if !ok {
		return nil
	}
	t, ok := r.(topicRow)
	if !ok {
		m.setStatus("Preview is only available for topics")
		return m.flush(nil)
	}

	key := t.previewKey()
	m.previewKey = key
	m.bodyView.SetContent(bodyHeader(t) + "\n\n" + "Loading…")
	m.view = viewBody

	if body, ok := m.previews[key]; ok {
		m.showPreview(body)
		return nil
	}
	if m.opts.Bodies == nil || t.LastMessageID == "" {
		m.previews[key] = t.Preview
		m.showPreview(t.Preview)
		return nil
	}

	fetch, id := m.opts.Bodies, t.LastMessageID
	timeout := m.opts.TopicOptions.Timeout
	if timeout <= 0 {
		timeout = search.DefaultTimeout
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		body, err := fetch(ctx, id)
		return bodyFetchedMsg{key: key, body: body, err: err}
	}
}

func (m *AppModel) showPreview(body string) {
	r, ok := m.selectedRow()
	header := ""
	if t, isTopic := r.(topicRow); ok && isTopic {
		header = bodyHeader(t) + "\n\n"
	}
	m.bodyView.SetContent(header + body)
	m.bodyView.GotoTop()
	m.view = viewBody
}

func (m *AppModel) openSelected() tea.Cmd {
	r, ok := m.selectedRow()
	if !ok {
		return nil
	}
	open, url := m.opts.OpenURL, r.url()
	return func() tea.Msg {
		return openedMsg{err: open(url)}
	}
}

func (m *AppModel) loadLocalCmd() tea.Cmd {
	local, mode, forum, limit := m.opts.Local, m.opts.Mode, m.opts.Forum, m.opts.LocalLimit
	return func() tea.Msg {
		if local == nil {
			return localLoadedMsg{}
		}
		ctx := context.Background()
		if mode == ModeTopics {
			topics, err := local.SearchTopics(ctx, forum, "", model.TopicCursor{}, limit)
			return localLoadedMsg{rows: topicRows(topics), err: err}
		}
		peers, err := local.ListPeers(ctx, limit)
		return localLoadedMsg{rows: peerRows(peers, false), err: err}
	}
}

func clearStatusAfter(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg{seq: seq}
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.view == viewLoading {
		return m.spin.View() + " Loading…\n"
	}

	var b strings.Builder

	switch m.view {
	case viewPicker:
		b.WriteString(headerStyle.Render(m.heading()))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if len(m.results.Items()) == 0 {
			b.WriteString(m.emptyState())
		} else {
			b.WriteString(m.results.View())
		}
		b.WriteString("\n")
		b.WriteString(m.statusLine())
		b.WriteString("\n")
		b.WriteString(pickerFooter(m.opts.Mode))
	case viewBody:
		b.WriteString(m.bodyView.View())
		b.WriteString("\n")
		if m.status != "" {
			b.WriteString(errorStyle.Render(m.status))
			b.WriteString("\n")
		}
		b.WriteString(bodyFooter())
	}

	return b.String()
}

func (m *AppModel) heading() string {
	if m.opts.Mode == ModeTopics {
		return "Topics in " + m.opts.Forum
	}
	return "Contacts"
}

const (
	iconSearch    = "⌕"
	iconNoResults = "∅"
)

// emptyState tells an empty query apart from a search that found nothing.
func (m *AppModel) emptyState() string {
	switch {
	case m.ctrl.Query() == "":
		return emptyStyle.Render(iconSearch + "  Type to search")
	case m.ctrl.State() != search.Idle:
		return emptyStyle.Render(m.spin.View() + " Searching…")
	default:
		return emptyStyle.Render(iconNoResults + "  No results")
	}
}

func (m *AppModel) statusLine() string {
	switch {
	case m.status != "":
		return errorStyle.Render(m.status)
	case m.ctrl.Loading():
		return m.spin.View() + statusStyle.Render(" searching")
	}
	n := len(m.results.Items())
	line := fmt.Sprintf("%d results", n)
	if m.opts.Mode == ModeTopics && m.allLoaded && m.ctrl.Query() != "" {
		line += " · end of list"
	}
	return statusStyle.Render(line)
}
