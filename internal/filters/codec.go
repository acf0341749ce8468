// Package filters keeps list-screen filter state mirrored into the URL query string.
package filters

import (
	"net/url"
	"strings"
)

// Encode renders values as a query string in the given key order. Keys whose value is
// empty after trimming are omitted entirely.
func Encode(keys []string, values map[string]string) string {
	var buf strings.Builder
	for _, key := range keys {
		value, ok := values[key]
		if !ok || blank(value) {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(value))
	}
	return buf.String()
}

// Decode parses every key/value pair found in raw, empty values included.
// Duplicate keys resolve to the last occurrence; undecodable escapes are kept verbatim.
func Decode(raw string) map[string]string {
	raw = strings.TrimPrefix(raw, "?")
	out := make(map[string]string)
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		if key == "" {
			continue
		}
		out[key] = unescape(value)
	}
	return out
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}
