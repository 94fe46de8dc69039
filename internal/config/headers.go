package config

import (
	"sort"
	"strings"
)

// ParseHeaders parses "name=value" pairs separated by commas. Each pair is
// split on its first "=". Segments without "=" or with an empty name are
// dropped.
func ParseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, segment := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}

// FormatHeaders is the inverse of ParseHeaders. Pairs are sorted by name so
// the persisted form is stable.
func FormatHeaders(h map[string]string) string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strings.TrimSpace(k))
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(h[k]))
	}
	return b.String()
}
