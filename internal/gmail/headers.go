package gmail

import (
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"chatpick/internal/model"
	"chatpick/internal/util"
)

const user = "me"

// Headers requested with Format("metadata").
var metadataHeaders = []string{"From", "Subject", "Date"}

const labelUnread = "UNREAD"

// refFromMessage converts a metadata-format message. It returns false when the
// sender cannot be parsed.
func refFromMessage(msg *gmailv1.Message) (model.MessageRef, bool) {
	if msg == nil {
		return model.MessageRef{}, false
	}
	var from, subject, date string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "subject":
				subject = h.Value
			case "date":
				date = h.Value
			}
		}
	}
	email := util.NormalizeSender(from)
	if email == "" {
		return model.MessageRef{}, false
	}

	ref := model.MessageRef{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		From:     email,
		FromName: util.DisplayName(from, email),
		Subject:  subject,
		Snippet:  CleanSnippet(msg.Snippet),
		Date:     messageDate(msg.InternalDate, date),
	}
	for _, l := range msg.LabelIds {
		if l == labelUnread {
			ref.Unread = true
			continue
		}
		ref.Labels = append(ref.Labels, l)
	}
	return ref, true
}

// messageDate prefers Gmail's internal timestamp (ms since epoch) and falls
// back to the Date header.
func messageDate(internalMillis int64, header string) time.Time {
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis).UTC()
	}
	return parseDate(header)
}

func parseDate(h string) time.Time {
	h = strings.TrimSpace(h)
	if h == "" {
		return time.Time{}
	}
	// Trailing zone comments like "(UTC)" are common and not in any layout.
	if i := strings.Index(h, " ("); i > 0 {
		h = h[:i]
	}
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, h); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
