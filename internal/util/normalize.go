package util

import (
	"net/mail"
	"strings"

	"chatpick/internal/model"
)

// NormalizeSender turns a From header into the peer ID: the address,
// lowercased, with any +alias dropped from the local part. A header holding a
// list yields its first parsable address. It returns "" when nothing parses.
func NormalizeSender(fromHeader string) string {
	addr := firstAddress(fromHeader)
	if addr == "" {
		return ""
	}

	email := strings.ToLower(addr)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	// Dots stay: only some providers ignore them.
	return local + "@" + domain
}

func firstAddress(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if a, err := mail.ParseAddress(header); err == nil {
		return strings.TrimSpace(a.Address)
	}
	if list, err := mail.ParseAddressList(header); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address)
	}
	for _, p := range strings.Split(header, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil {
			return strings.TrimSpace(a.Address)
		}
	}
	return ""
}

var bulkLocalParts = []string{
	"noreply", "no-reply", "donotreply", "do-not-reply",
	"notifications", "notification", "newsletter", "news", "updates", "mailer-daemon",
}

// SenderKind guesses whether a normalized address belongs to a person or to
// an automated or list sender.
func SenderKind(email string) model.PeerKind {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return model.KindUser
	}
	local := email[:at]
	for _, p := range bulkLocalParts {
		if local == p || strings.HasPrefix(local, p+".") || strings.HasPrefix(local, p+"-") {
			return model.KindGroup
		}
	}
	return model.KindUser
}

// DisplayName picks a human name for a sender. It prefers the name part of
// the From header, e.g. "Twitter <notify@twitter.com>" -> "Twitter", and
// otherwise title-cases the local part of the address.
func DisplayName(fromHeader, normalized string) string {
	if idx := strings.Index(fromHeader, "<"); idx > 0 {
		name := strings.TrimSpace(fromHeader[:idx])
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}
	if at := strings.IndexByte(normalized, '@'); at > 0 {
		parts := strings.FieldsFunc(normalized[:at], func(r rune) bool { return r == '.' || r == '_' })
		for i := range parts {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return normalized
}

// TopicTitle strips reply and forward prefixes from a subject line.
func TopicTitle(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		trimmed := false
		for _, p := range []string{"re:", "fwd:", "fw:"} {
			if strings.HasPrefix(lower, p) {
				s = strings.TrimSpace(s[len(p):])
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}
	if s == "" {
		return "(no subject)"
	}
	return s
}
