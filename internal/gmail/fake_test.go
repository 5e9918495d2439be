package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"chatpick/internal/model"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGmail serves the handful of Gmail API endpoints chatpick calls.
type fakeGmail struct {
	mu        sync.Mutex
	messages  map[string]*gmailv1.Message
	labels    []*gmailv1.Label
	historyID uint64
	history   []*gmailv1.History
	// historyGone makes history.list answer 404, as for an expired start ID.
	historyGone bool
	calls       map[string]int
}

func newFakeGmail() *fakeGmail {
	return &fakeGmail{
		messages:  make(map[string]*gmailv1.Message),
		historyID: 100,
		calls:     make(map[string]int),
	}
}

func (f *fakeGmail) add(id, thread, from, subject string, at time.Time, labels ...string) {
	f.messages[id] = &gmailv1.Message{
		Id:           id,
		ThreadId:     thread,
		LabelIds:     labels,
		Snippet:      "about " + strings.ToLower(subject) + " &amp; more",
		InternalDate: at.UnixMilli(),
		Payload: &gmailv1.MessagePart{Headers: []*gmailv1.MessagePartHeader{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
		}},
	}
}

// service starts the fake and returns a client pointed at it.
func (f *fakeGmail) service(t *testing.T) *gmailv1.Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	svc, err := gmailv1.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("gmail.NewService: %v", err)
	}
	return svc
}

func (f *fakeGmail) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	q := r.URL.Query()
	parts := strings.Split(path, "/")
	f.calls[parts[0]]++

	switch {
	case path == "profile":
		writeJSON(w, &gmailv1.Profile{EmailAddress: "me@example.com", HistoryId: f.historyID})
	case path == "labels":
		writeJSON(w, &gmailv1.ListLabelsResponse{Labels: f.labels})
	case path == "history":
		if f.historyGone {
			http.Error(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`, http.StatusNotFound)
			return
		}
		writeJSON(w, &gmailv1.ListHistoryResponse{History: f.history, HistoryId: f.historyID})
	case path == "messages":
		var out []*gmailv1.Message
		for _, m := range f.sorted() {
			if !matchLabel(m, q.Get("labelIds")) || !matchFrom(m, q.Get("q")) {
				continue
			}
			out = append(out, &gmailv1.Message{Id: m.Id, ThreadId: m.ThreadId})
		}
		writeJSON(w, &gmailv1.ListMessagesResponse{Messages: limit(out, q.Get("maxResults"))})
	case len(parts) == 2 && parts[0] == "messages":
		m, ok := f.messages[parts[1]]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
			return
		}
		writeJSON(w, m)
	case path == "threads":
		// Like the API, a thread matches when any one of its messages does.
		before := beforeBound(q.Get("q"))
		var out []*gmailv1.Thread
		for _, th := range f.threads() {
			if anyMessage(th, func(m *gmailv1.Message) bool {
				return matchLabel(m, q.Get("labelIds")) &&
					(before == 0 || m.InternalDate/1000 < before)
			}) {
				out = append(out, &gmailv1.Thread{Id: th.Id})
			}
		}
		start, _ := strconv.Atoi(q.Get("pageToken"))
		if start > len(out) {
			start = len(out)
		}
		out = out[start:]
		resp := &gmailv1.ListThreadsResponse{Threads: out}
		if n, _ := strconv.Atoi(q.Get("maxResults")); n > 0 && len(out) > n {
			resp.Threads = out[:n]
			resp.NextPageToken = strconv.Itoa(start + n)
		}
		writeJSON(w, resp)
	case len(parts) == 2 && parts[0] == "threads":
		for _, th := range f.threads() {
			if th.Id == parts[1] {
				writeJSON(w, th)
				return
			}
		}
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	default:
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotImplemented)
	}
}

func anyMessage(th *gmailv1.Thread, match func(*gmailv1.Message) bool) bool {
	for _, m := range th.Messages {
		if match(m) {
			return true
		}
	}
	return false
}

// sorted returns messages newest first, like the API.
func (f *fakeGmail) sorted() []*gmailv1.Message {
	out := make([]*gmailv1.Message, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalDate > out[j].InternalDate })
	return out
}

// threads groups messages by thread, oldest message first, threads newest first.
func (f *fakeGmail) threads() []*gmailv1.Thread {
	byID := make(map[string]*gmailv1.Thread)
	var order []*gmailv1.Thread
	for _, m := range f.sorted() {
		th, ok := byID[m.ThreadId]
		if !ok {
			th = &gmailv1.Thread{Id: m.ThreadId}
			byID[m.ThreadId] = th
			order = append(order, th)
		}
		th.Messages = append([]*gmailv1.Message{m}, th.Messages...)
	}
	return order
}

func matchLabel(m *gmailv1.Message, label string) bool {
	return label == "" || contains(m.LabelIds, label)
}

func matchFrom(m *gmailv1.Message, q string) bool {
	start := strings.Index(q, "from:(")
	if start < 0 {
		return true
	}
	term := strings.ToLower(strings.TrimSuffix(q[start+len("from:("):], ")"))
	for _, h := range m.Payload.Headers {
		if h.Name == "From" && strings.Contains(strings.ToLower(h.Value), term) {
			return true
		}
	}
	return false
}

func beforeBound(q string) int64 {
	for _, f := range strings.Fields(q) {
		if v, ok := strings.CutPrefix(f, "before:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func limit(ms []*gmailv1.Message, max string) []*gmailv1.Message {
	if n, _ := strconv.Atoi(max); n > 0 && len(ms) > n {
		return ms[:n]
	}
	return ms
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// memStore is an in-memory MessageStore and LocalPeers.
type memStore struct {
	msgs    map[string]model.MessageRef
	forums  map[string]string
	history string
	peers   map[string]model.Peer
}

func newMemStore() *memStore {
	return &memStore{
		msgs:   make(map[string]model.MessageRef),
		forums: make(map[string]string),
		peers:  make(map[string]model.Peer),
	}
}

func (s *memStore) UpsertMessages(_ context.Context, msgs []model.MessageRef) error {
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	return nil
}

func (s *memStore) DeleteMessages(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.msgs, id)
	}
	return nil
}

func (s *memStore) CountMessages(context.Context) (int, error) { return len(s.msgs), nil }

func (s *memStore) GetLastHistoryID(context.Context) (string, error) { return s.history, nil }

func (s *memStore) SetLastHistoryID(_ context.Context, id string) error {
	s.history = id
	return nil
}

func (s *memStore) UpsertForums(_ context.Context, forums []model.Forum) error {
	for _, f := range forums {
		s.forums[f.ID] = f.Name
	}
	return nil
}

func (s *memStore) GetPeersByIDs(_ context.Context, ids []string) ([]model.Peer, error) {
	var out []model.Peer
	for _, id := range ids {
		if p, ok := s.peers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
