package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field limits, in runes.
const (
	routeLimit     = 180
	methodLimit    = 10
	addrLimit      = 64
	sessionIDLimit = 26
	emailLimit     = 128
)

// clean drops control runes and invalid bytes and keeps at most limit runes,
// so request data cannot forge log lines.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

// SanitizeRoute cleans a request path or chi route pattern for logs and spans.
func SanitizeRoute(route string) string {
	if route = clean(route, routeLimit); route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod cleans an HTTP method.
func SanitizeMethod(method string) string {
	return strings.ToUpper(clean(method, methodLimit))
}

// SanitizeSessionID bounds a session id to the length of a ULID.
func SanitizeSessionID(id string) string {
	return clean(id, sessionIDLimit)
}

// MaskEmail keeps the first letter and the domain of a customer address:
// "jana@example.cz" is logged as "j***@example.cz".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(local)
	return clean(string(first)+"***@"+domain, emailLimit)
}
