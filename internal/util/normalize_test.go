package util

import (
	"testing"

	"chatpick/internal/model"
)

func TestNormalizeSender_Basic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Name <User@Example.COM>`, "user@example.com"},
		{`"Name" <user+news@Example.com>`, "user@example.com"},
		{`user+tag@EXAMPLE.com`, "user@example.com"},
		{`user.name+tag@EXAMPLE.com`, "user.name@example.com"}, // dots preserved
		{`user.name@example.com`, "user.name@example.com"},
		{`bad address`, ""}, // unparsable
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com"}, // list fallback picks first valid
		{`A@x.com, b@y.com`, "a@x.com"},
		{``, ""},
	}
	for _, tc := range tests {
		if got := NormalizeSender(tc.in); got != tc.want {
			t.Errorf("NormalizeSender(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestSenderKind(t *testing.T) {
	tests := []struct {
		in   string
		want model.PeerKind
	}{
		{"alice@example.com", model.KindUser},
		{"noreply@github.com", model.KindGroup},
		{"no-reply.billing@shop.com", model.KindGroup},
		{"notifications@slack.com", model.KindGroup},
		{"newsroom@paper.com", model.KindUser},
		{"", model.KindUser},
	}
	for _, tc := range tests {
		if got := SenderKind(tc.in); got != tc.want {
			t.Errorf("SenderKind(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		from, normalized, want string
	}{
		{`Twitter <notify@twitter.com>`, "notify@twitter.com", "Twitter"},
		{`"Jane Doe" <jane@x.com>`, "jane@x.com", "Jane Doe"},
		{`john.smith@x.com`, "john.smith@x.com", "John Smith"},
		{``, "mary_ann@x.com", "Mary Ann"},
		{``, "weird", "weird"},
	}
	for _, tc := range tests {
		if got := DisplayName(tc.from, tc.normalized); got != tc.want {
			t.Errorf("DisplayName(%q, %q) = %q; want %q", tc.from, tc.normalized, got, tc.want)
		}
	}
}

func TestTopicTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Re: Lunch", "Lunch"},
		{"RE: Fwd: re: Lunch plans", "Lunch plans"},
		{"FW: report", "report"},
		{"Regarding the plan", "Regarding the plan"},
		{"  ", "(no subject)"},
	}
	for _, tc := range tests {
		if got := TopicTitle(tc.in); got != tc.want {
			t.Errorf("TopicTitle(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
