package search

import (
	"testing"

	"chatpick/internal/model"
)

func found(ids ...string) model.Found {
	var f model.Found
	for _, id := range ids {
		f.Results = append(f.Results, model.Peer{ID: id})
	}
	return f
}

func TestResultCacheEvictsOldest(t *testing.T) {
	c := newResultCache(2)
	c.put("a", found("1"))
	c.put("b", found("2"))
	c.put("c", found("3"))

	if _, ok := c.get("a"); ok {
		t.Error("a should have been evicted")
	}
	for _, q := range []string{"b", "c"} {
		if _, ok := c.get(q); !ok {
			t.Errorf("%s should still be cached", q)
		}
	}
	if s := c.stats(); s.Entries != 2 || s.Hits != 2 || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestResultCacheReplaceKeepsOrder(t *testing.T) {
	c := newResultCache(2)
	c.put("a", found("1"))
	c.put("b", found("2"))
	c.put("a", found("9"))
	c.put("c", found("3"))

	if _, ok := c.get("a"); ok {
		t.Error("replacing a must not refresh its position")
	}
	got, ok := c.get("b")
	if !ok || got.Results[0].ID != "2" {
		t.Errorf("b = %+v, %v", got, ok)
	}
}

func TestResultCacheUnbounded(t *testing.T) {
	c := newResultCache(0)
	for _, q := range []string{"a", "b", "c", "d", "e"} {
		c.put(q, found(q))
	}
	if s := c.stats(); s.Entries != 5 {
		t.Errorf("entries = %d, want 5", s.Entries)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Debouncing, "debouncing"},
		{Awaiting, "awaiting"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
