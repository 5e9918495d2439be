package model

import "time"

// MessageRef holds the message metadata we keep locally. Peers and topics are
// derived from it.
type MessageRef struct {
	ID       string
	ThreadID string
	From     string // normalized sender email
	FromName string
	Subject  string
	Snippet  string
	Date     time.Time
	Labels   []string
	Unread   bool
}

type PeerKind int

const (
	KindUser  PeerKind = iota
	KindGroup          // mailing lists and no-reply senders
)

func (k PeerKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	default:
		return "user"
	}
}

// Peer is someone the user exchanges messages with. ID is the normalized
// sender address.
type Peer struct {
	ID           string
	Kind         PeerKind
	Name         string
	Email        string
	LastActive   time.Time
	MessageCount int
	Unread       int
}

// Found is the result of a global peer search: peers the user already knows
// locally, then everything else the server returned.
type Found struct {
	MyResults []Peer
	Results   []Peer
}

func (f Found) Len() int { return len(f.MyResults) + len(f.Results) }

// Peers flattens f, my results first, dropping duplicate IDs.
func (f Found) Peers() []Peer {
	seen := make(map[string]struct{}, f.Len())
	out := make([]Peer, 0, f.Len())
	for _, list := range [][]Peer{f.MyResults, f.Results} {
		for _, p := range list {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Forum is a label that groups topics.
type Forum struct {
	ID     string
	Name   string
	Topics int
}

// Topic is a thread inside a forum.
type Topic struct {
	ID            string
	Forum         string
	Title         string
	Preview       string
	LastMessageID string
	LastDate      time.Time
	MessageCount  int
	Unread        int
}

// TopicCursor is the keyset position of the last topic already shown.
// The zero value asks for the first page.
type TopicCursor struct {
	OffsetDate    int64 // unix seconds
	OffsetID      string
	OffsetTopicID string
}

func (c TopicCursor) IsZero() bool {
	return c.OffsetDate == 0 && c.OffsetID == "" && c.OffsetTopicID == ""
}

// CursorAfter returns the cursor that continues a listing after t.
func CursorAfter(t Topic) TopicCursor {
	return TopicCursor{
		OffsetDate:    t.LastDate.Unix(),
		OffsetID:      t.LastMessageID,
		OffsetTopicID: t.ID,
	}
}

// Admits reports whether t sorts strictly after the cursor position, with
// topics ordered by last date, last message ID and topic ID, all descending.
func (c TopicCursor) Admits(t Topic) bool {
	if c.IsZero() {
		return true
	}
	d := t.LastDate.Unix()
	if d != c.OffsetDate {
		return d < c.OffsetDate
	}
	if t.LastMessageID != c.OffsetID {
		return t.LastMessageID < c.OffsetID
	}
	return t.ID < c.OffsetTopicID
}

// TopicNewer orders topics newest first, matching TopicCursor.
func TopicNewer(a, b Topic) bool {
	da, db := a.LastDate.Unix(), b.LastDate.Unix()
	if da != db {
		return da > db
	}
	if a.LastMessageID != b.LastMessageID {
		return a.LastMessageID > b.LastMessageID
	}
	return a.ID > b.ID
}

// SyncProgress is reported while the mailbox is copied into the local store.
type SyncProgress struct {
	Done  int
	Total int
	Phase string
}
