package members

import (
	"regexp"
	"strings"
)

var handleRe = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// NormalizeHandle strips the leading @ and lower-cases a chat handle. It
// returns false when the result is not a valid handle.
func NormalizeHandle(raw string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "@")
	if !handleRe.MatchString(h) {
		return "", false
	}
	return h, true
}

func normalizeOptionalHandle(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	h, ok := NormalizeHandle(raw)
	if !ok {
		return nil
	}
	return &h
}
