// internal/service/template_service.go
package service

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// RenderTemplate replaces {key} placeholders with values from data. Keys are
// applied longest first so {title} never clobbers {title_short}.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	result := template
	for _, k := range keys {
		result = strings.ReplaceAll(result, "{"+k+"}", data[k])
	}
	return result
}

const ellipsis = "…"

// TruncateRunes shortens s to at most limit runes, marking the cut with an ellipsis.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit == 1 {
		return string(runes[:1])
	}
	return strings.TrimRightFunc(string(runes[:limit-1]), isSpace) + ellipsis
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }
