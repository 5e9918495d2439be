package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatpick/internal/gmail"
	"chatpick/internal/model"
)

// maxRingSegments caps the unread ring drawn before a row title.
const maxRingSegments = 5

// row is one line pair in the picker.
type row interface {
	list.Item
	RowID() string
	Title() string
	Description() string
	// Action is drawn right-aligned on the title line. Empty means none.
	Action() string
	counts() (total, unread int)
	selection() Selection
	url() string
}

// peerRow is a person. remote marks peers that only the server knows about.
type peerRow struct {
	model.Peer
	remote bool
}

func (p peerRow) FilterValue() string { return p.Name + " " + p.Email }
func (p peerRow) RowID() string       { return p.ID }
func (p peerRow) Title() string       { return p.Name }
func (p peerRow) Description() string { return describe(p.Email, p.LastActive) }
func (p peerRow) counts() (int, int)  { return p.MessageCount, p.Unread }
func (p peerRow) url() string         { return gmail.SenderURL(p.Email) }

func (p peerRow) Action() string {
	if p.remote {
		return "global"
	}
	return ""
}

func (p peerRow) selection() Selection {
	return Selection{Kind: p.Kind.String(), ID: p.ID, Title: p.Name}
}

// chatRow is a group sender such as a mailing list.
type chatRow struct {
	peerRow
}

func (c chatRow) Action() string {
	if c.remote {
		return "global group"
	}
	return "group"
}

type topicRow struct {
	model.Topic
}

func (t topicRow) FilterValue() string { return t.Topic.Title + " " + t.Preview }
func (t topicRow) RowID() string       { return t.ID }
func (t topicRow) Description() string { return describe(t.Preview, t.LastDate) }
func (t topicRow) Action() string      { return "" }
func (t topicRow) counts() (int, int)  { return t.MessageCount, t.Unread }
func (t topicRow) url() string         { return gmail.ThreadURL(t.ID) }

func (t topicRow) Title() string {
	if t.Topic.Title == "" {
		return "(no subject)"
	}
	return t.Topic.Title
}

func (t topicRow) selection() Selection {
	return Selection{Kind: "topic", ID: t.ID, Title: t.Title(), Forum: t.Forum}
}

// previewKey identifies the body shown for a topic. A new message in the
// thread changes the key.
func (t topicRow) previewKey() string { return t.ID + "/" + t.LastMessageID }

func peerRowFor(p model.Peer, remote bool) row {
	r := peerRow{Peer: p, remote: remote}
	if p.Kind == model.KindGroup {
		return chatRow{r}
	}
	return r
}

func peerRows(peers []model.Peer, remote bool) []row {
	out := make([]row, len(peers))
	for i, p := range peers {
		out[i] = peerRowFor(p, remote)
	}
	return out
}

// foundRows turns a global search result into rows, my results first.
func foundRows(f model.Found) []row {
	mine := make(map[string]struct{}, len(f.MyResults))
	for _, p := range f.MyResults {
		mine[p.ID] = struct{}{}
	}
	var out []row
	for _, p := range f.Peers() {
		_, local := mine[p.ID]
		out = append(out, peerRowFor(p, !local))
	}
	return out
}

func topicRows(topics []model.Topic) []row {
	out := make([]row, len(topics))
	for i, t := range topics {
		out[i] = topicRow{t}
	}
	return out
}

// filterRows keeps rows whose filter value contains query, ignoring case.
func filterRows(rows []row, query string) []row {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows
	}
	var out []row
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.FilterValue()), query) {
			out = append(out, r)
		}
	}
	return out
}

// mergeRows lists local rows, then delivered ones. A delivered row with the
// ID of a local row replaces it in place.
func mergeRows(local, delivered []row) []row {
	out := make([]row, 0, len(local)+len(delivered))
	at := make(map[string]int, len(local)+len(delivered))
	for _, rs := range [][]row{local, delivered} {
		for _, r := range rs {
			if i, ok := at[r.RowID()]; ok {
				out[i] = r
				continue
			}
			at[r.RowID()] = len(out)
			out = append(out, r)
		}
	}
	return out
}

func toItems(rows []row) []list.Item {
	items := make([]list.Item, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	return items
}

// unreadRing draws one segment per message, up to maxRingSegments, filled
// for unread ones.
func unreadRing(total, unread int) string {
	filled, empty := ringSegments(total, unread)
	if filled+empty == 0 {
		return ""
	}
	return ringUnreadStyle.Render(strings.Repeat("●", filled)) +
		ringReadStyle.Render(strings.Repeat("○", empty))
}

func ringSegments(total, unread int) (filled, empty int) {
	n := max(min(total, maxRingSegments), 0)
	filled = min(max(unread, 0), n)
	return filled, n - filled
}

func describe(text string, at time.Time) string {
	if at.IsZero() {
		return text
	}
	if text == "" {
		return relativeTime(at)
	}
	return text + " · " + relativeTime(at)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

// rowDelegate renders rows as a title line with the unread ring and action
// label, then a dimmed description line.
type rowDelegate struct{}

func (rowDelegate) Height() int                         { return 2 }
func (rowDelegate) Spacing() int                        { return 1 }
func (rowDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	r, ok := item.(row)
	if !ok {
		return
	}
	fmt.Fprint(w, renderRow(r, index == m.Index(), m.Width()))
}

func renderRow(r row, selected bool, width int) string {
	if width < 20 {
		width = 40
	}

	cursor, titleStyle := "  ", rowTitleStyle
	if selected {
		cursor, titleStyle = "> ", rowSelectedStyle
	}

	ring := unreadRing(r.counts())
	if ring != "" {
		ring += " "
	}

	action := ""
	if a := r.Action(); a != "" {
		action = actionStyle.Render(a)
	}

	room := width - lipgloss.Width(cursor) - lipgloss.Width(ring) - lipgloss.Width(action) - 1
	left := cursor + ring + titleStyle.Render(truncate(r.Title(), room))
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(action), 1)
	title := left
	if action != "" {
		title += strings.Repeat(" ", gap) + action
	}

	desc := "  " + rowDescStyle.Render(truncate(r.Description(), width-2))
	return title + "\n" + desc
}
