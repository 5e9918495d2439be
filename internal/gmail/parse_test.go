package gmail

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
)

func TestRefFromMessage(t *testing.T) {
	msg := &gmailv1.Message{
		Id:       "m1",
		ThreadId: "t1",
		LabelIds: []string{"INBOX", "UNREAD", "Label_3"},
		Snippet:  "see you at 5 &gt; 4",
		Payload: &gmailv1.MessagePart{Headers: []*gmailv1.MessagePartHeader{
			{Name: "FROM", Value: `"Ann Lee" <Ann+lists@Example.com>`},
			{Name: "subject", Value: "Dinner"},
			{Name: "Date", Value: "Tue, 5 Mar 2024 18:04:05 +0100 (CET)"},
		}},
	}
	ref, ok := refFromMessage(msg)
	if !ok {
		t.Fatal("expected a ref")
	}
	if ref.From != "ann@example.com" || ref.FromName != "Ann Lee" {
		t.Errorf("sender = %q / %q", ref.From, ref.FromName)
	}
	if !ref.Unread || len(ref.Labels) != 2 || ref.Labels[1] != "Label_3" {
		t.Errorf("labels = %v unread = %v", ref.Labels, ref.Unread)
	}
	if ref.Snippet != "see you at 5 > 4" {
		t.Errorf("snippet = %q", ref.Snippet)
	}
	want := time.Date(2024, 3, 5, 17, 4, 5, 0, time.UTC)
	if !ref.Date.Equal(want) {
		t.Errorf("date = %v, want %v", ref.Date, want)
	}

	if _, ok := refFromMessage(&gmailv1.Message{Id: "x", Payload: &gmailv1.MessagePart{}}); ok {
		t.Error("message without sender should be skipped")
	}
}

func TestMessageDatePrefersInternalDate(t *testing.T) {
	got := messageDate(1709658245000, "garbage")
	if !got.Equal(time.UnixMilli(1709658245000)) {
		t.Errorf("messageDate = %v", got)
	}
	if !parseDate("not a date").IsZero() {
		t.Error("unparsable date should be zero")
	}
	if parseDate("2 Jan 2024 10:00:00 +0000").IsZero() {
		t.Error("date without weekday should parse")
	}
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestBodyText(t *testing.T) {
	tests := []struct {
		name string
		msg  *gmailv1.Message
		want string
	}{
		{
			name: "plain preferred over html",
			msg: &gmailv1.Message{Payload: &gmailv1.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmailv1.MessagePart{
					{MimeType: "text/html", Body: &gmailv1.MessagePartBody{Data: b64("<p>html</p>")}},
					{MimeType: "text/plain", Body: &gmailv1.MessagePartBody{Data: b64("plain body\n")}},
				},
			}},
			want: "plain body",
		},
		{
			name: "nested html",
			msg: &gmailv1.Message{Payload: &gmailv1.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmailv1.MessagePart{{
					MimeType: "multipart/related",
					Parts: []*gmailv1.MessagePart{{
						MimeType: "TEXT/HTML",
						Body: &gmailv1.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString(
							[]byte("<style>p{}</style><p>Hi&nbsp;there &amp; bye</p><p>Line two<br>three</p>"))},
					}},
				}},
			}},
			want: "Hi there & bye\nLine two\nthree",
		},
		{
			name: "snippet fallback",
			msg:  &gmailv1.Message{Snippet: "just &quot;this&quot;", Payload: &gmailv1.MessagePart{MimeType: "image/png"}},
			want: `just "this"`,
		},
		{
			name: "nothing",
			msg:  &gmailv1.Message{},
			want: "(no content)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bodyText(tt.msg); got != tt.want {
				t.Errorf("bodyText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanSnippet(t *testing.T) {
	if got := CleanSnippet("  a &amp;\n b&#39;s  "); got != "a & b's" {
		t.Errorf("CleanSnippet = %q", got)
	}
}

func TestParseAuthInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  4/abc  ", "4/abc", false},
		{"http://127.0.0.1:5555/?state=state-token&code=4/xyz&scope=a", "4/xyz", false},
		{"https://example.com/cb?state=s", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseAuthInput(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseAuthInput(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOpenBrowserRejectsNonHTTP(t *testing.T) {
	for _, u := range []string{"file:///etc/passwd", "javascript:alert(1)", "ftp://example.com", ""} {
		if err := OpenBrowser(u); !errors.Is(err, ErrNotHTTP) {
			t.Errorf("OpenBrowser(%q) = %v, want ErrNotHTTP", u, err)
		}
	}
	if err := checkHTTP(ThreadURL("18c/ab")); err != nil {
		t.Errorf("thread url rejected: %v", err)
	}
}
