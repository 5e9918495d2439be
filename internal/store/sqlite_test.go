package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"chatpick/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func sampleMessages() []model.MessageRef {
	return []model.MessageRef{
		{ID: "m1", ThreadID: "t1", From: "alice@example.com", FromName: "Alice", Subject: "Lunch", Snippet: "are we on for lunch", Date: day, Labels: []string{"INBOX"}},
		{ID: "m2", ThreadID: "t1", From: "bob@example.com", FromName: "Bob", Subject: "Re: Lunch", Snippet: "yes, noon", Date: day.Add(time.Hour), Labels: []string{"INBOX"}, Unread: true},
		{ID: "m3", ThreadID: "t2", From: "alice@example.com", FromName: "Alice A.", Subject: "Quarterly report", Snippet: "numbers attached", Date: day.Add(2 * time.Hour), Labels: []string{"INBOX", "Label_work"}},
		{ID: "m4", ThreadID: "t3", From: "noreply@github.com", Subject: "[repo] build failed", Snippet: "100% broken", Date: day.Add(-time.Hour), Labels: []string{"Label_work"}, Unread: true},
	}
}

func seeded(t *testing.T) *SQLiteStore {
	t.Helper()
	s := testStore(t)
	if err := s.UpsertMessages(context.Background(), sampleMessages()); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}
	return s
}

func TestUpsertAndCount(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	count, err := s.CountMessages(ctx)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4, got %d", count)
	}

	// Upsert should update existing and replace labels
	msgs := sampleMessages()
	msgs[3].Labels = []string{"INBOX"}
	if err := s.UpsertMessages(ctx, msgs[3:]); err != nil {
		t.Fatalf("UpsertMessages update: %v", err)
	}
	work, err := s.SearchTopics(ctx, "Label_work", "", model.TopicCursor{}, 10)
	if err != nil {
		t.Fatalf("SearchTopics: %v", err)
	}
	if len(work) != 1 || work[0].ID != "t2" {
		t.Errorf("work topics after relabel = %+v", work)
	}
}

func TestPeersAggregate(t *testing.T) {
	s := seeded(t)
	peers, err := s.ListPeers(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(peers))
	}
	alice := peers[0]
	if alice.ID != "alice@example.com" || alice.MessageCount != 2 {
		t.Errorf("most recent peer = %+v", alice)
	}
	if alice.Name != "Alice A." {
		t.Errorf("name should come from the newest message, got %q", alice.Name)
	}
	if !alice.LastActive.Equal(day.Add(2 * time.Hour)) {
		t.Errorf("last active = %v", alice.LastActive)
	}

	var gh model.Peer
	for _, p := range peers {
		if p.ID == "noreply@github.com" {
			gh = p
		}
	}
	if gh.Kind != model.KindGroup || gh.Unread != 1 {
		t.Errorf("github peer = %+v", gh)
	}
	if gh.Name == "" {
		t.Error("nameless sender should get a derived name")
	}
}

func TestSearchPeers(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	found, err := s.SearchPeers(ctx, "ALI", 10)
	if err != nil {
		t.Fatalf("SearchPeers: %v", err)
	}
	if len(found.MyResults) != 1 || found.MyResults[0].ID != "alice@example.com" {
		t.Errorf("search ALI = %+v", found)
	}
	if len(found.Results) != 0 {
		t.Error("local search should only fill MyResults")
	}

	found, _ = s.SearchPeers(ctx, "example.com", 10)
	if len(found.MyResults) != 2 {
		t.Errorf("search by domain got %d peers", len(found.MyResults))
	}

	byID, err := s.GetPeersByIDs(ctx, []string{"bob@example.com", "nobody@x.com"})
	if err != nil {
		t.Fatalf("GetPeersByIDs: %v", err)
	}
	if len(byID) != 1 || byID[0].Name != "Bob" {
		t.Errorf("GetPeersByIDs = %+v", byID)
	}
}

func TestSearchTopics(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	inbox, err := s.SearchTopics(ctx, "INBOX", "", model.TopicCursor{}, 10)
	if err != nil {
		t.Fatalf("SearchTopics: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("expected 2 inbox topics, got %d", len(inbox))
	}
	if inbox[0].ID != "t2" || inbox[1].ID != "t1" {
		t.Errorf("order = %s, %s", inbox[0].ID, inbox[1].ID)
	}
	lunch := inbox[1]
	if lunch.Title != "Lunch" || lunch.LastMessageID != "m2" || lunch.MessageCount != 2 || lunch.Unread != 1 {
		t.Errorf("lunch topic = %+v", lunch)
	}

	hits, err := s.SearchTopics(ctx, "INBOX", "noon", model.TopicCursor{}, 10)
	if err != nil {
		t.Fatalf("SearchTopics noon: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "t1" {
		t.Errorf("search noon = %+v", hits)
	}

	// LIKE wildcards in the query are literal.
	pct, _ := s.SearchTopics(ctx, "Label_work", "100%", model.TopicCursor{}, 10)
	if len(pct) != 1 || pct[0].ID != "t3" {
		t.Errorf("search 100%% = %+v", pct)
	}
	none, _ := s.SearchTopics(ctx, "Label_work", "_", model.TopicCursor{}, 10)
	if len(none) != 0 {
		t.Errorf("underscore should match literally, got %+v", none)
	}
}

func TestSearchTopicsKeysetPaging(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var msgs []model.MessageRef
	for i := 0; i < 7; i++ {
		// Pairs of threads share a timestamp so the tie-breakers matter.
		msgs = append(msgs, model.MessageRef{
			ID:       fmt.Sprintf("m%d", i),
			ThreadID: fmt.Sprintf("t%d", i),
			From:     "a@x.com",
			Subject:  "standup notes",
			Date:     day.Add(time.Duration(i/2) * time.Minute),
			Labels:   []string{"INBOX"},
		})
	}
	if err := s.UpsertMessages(ctx, msgs); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}

	var (
		cursor model.TopicCursor
		seen   []string
	)
	for page := 0; page < 10; page++ {
		got, err := s.SearchTopics(ctx, "INBOX", "standup", cursor, 3)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(got) == 0 {
			break
		}
		for _, tp := range got {
			seen = append(seen, tp.ID)
		}
		cursor = model.CursorAfter(got[len(got)-1])
	}

	want := []string{"t6", "t5", "t4", "t3", "t2", "t1", "t0"}
	if len(seen) != len(want) {
		t.Fatalf("paged %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("paged[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestForums(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	if err := s.UpsertForums(ctx, []model.Forum{{ID: "Label_work", Name: "Work"}}); err != nil {
		t.Fatalf("UpsertForums: %v", err)
	}
	forums, err := s.ListForums(ctx)
	if err != nil {
		t.Fatalf("ListForums: %v", err)
	}
	if len(forums) != 2 {
		t.Fatalf("expected 2 forums, got %+v", forums)
	}
	if forums[0].ID != "INBOX" || forums[0].Name != "INBOX" || forums[0].Topics != 2 {
		t.Errorf("inbox forum = %+v", forums[0])
	}
	if forums[1].Name != "Work" || forums[1].Topics != 2 {
		t.Errorf("work forum = %+v", forums[1])
	}
}

func TestDeleteMessages(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	if err := s.DeleteMessages(ctx, []string{"m2"}); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	count, _ := s.CountMessages(ctx)
	if count != 3 {
		t.Fatalf("expected 3 after delete, got %d", count)
	}
	inbox, _ := s.SearchTopics(ctx, "INBOX", "lunch", model.TopicCursor{}, 10)
	if len(inbox) != 1 || inbox[0].LastMessageID != "m1" {
		t.Errorf("lunch after delete = %+v", inbox)
	}
}

func TestHistoryID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	hid, err := s.GetLastHistoryID(ctx)
	if err != nil {
		t.Fatalf("GetLastHistoryID: %v", err)
	}
	if hid != "" {
		t.Fatalf("expected empty, got %q", hid)
	}

	if err := s.SetLastHistoryID(ctx, "12345"); err != nil {
		t.Fatalf("SetLastHistoryID: %v", err)
	}
	s.SetLastHistoryID(ctx, "99999")
	hid, _ = s.GetLastHistoryID(ctx)
	if hid != "99999" {
		t.Fatalf("expected 99999, got %q", hid)
	}
}
