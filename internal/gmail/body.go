package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// MessageBody fetches a message and returns its body as plain text. It
// prefers text/plain, falls back to the text of an HTML part, then the
// snippet.
func MessageBody(ctx context.Context, svc *gmailv1.Service, messageID string) (string, error) {
	msg, err := svc.Users.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", messageID, err)
	}
	return bodyText(msg), nil
}

func bodyText(msg *gmailv1.Message) string {
	if body := findPart(msg.Payload, "text/plain"); body != "" {
		return strings.TrimSpace(body)
	}
	if doc := findPart(msg.Payload, "text/html"); doc != "" {
		if text := htmlText(doc); text != "" {
			return text
		}
	}
	if s := CleanSnippet(msg.Snippet); s != "" {
		return s
	}
	return "(no content)"
}

// findPart returns the decoded body of the first part with the given MIME
// type, depth first. Direct children are checked before grandchildren so a
// multipart/alternative picks its own text/plain over a nested one.
func findPart(part *gmailv1.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	for _, sub := range part.Parts {
		if strings.EqualFold(sub.MimeType, mimeType) && sub.Body != nil && sub.Body.Data != "" {
			return decodeBase64URL(sub.Body.Data)
		}
	}
	for _, sub := range part.Parts {
		if body := findPart(sub, mimeType); body != "" {
			return body
		}
	}
	return ""
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlText extracts readable text from an HTML document.
func htmlText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case tag == "br":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
			} else if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				// Text() has entities decoded already.
				b.Write(z.Text())
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(strings.ReplaceAll(l, "\u00a0", " "), " \t\r")
		if strings.TrimSpace(l) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// CleanSnippet decodes the HTML entities Gmail leaves in snippets and
// collapses whitespace.
func CleanSnippet(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
