// internal/hashtag/hashtag.go
package hashtag

import (
	"context"
	"strings"
	"unicode"
)

// Request describes the article a caption's hashtags are suggested for.
type Request struct {
	Title    string
	Excerpt  string
	Category string
	Tags     []string
}

// Generator suggests hashtags for an article. Implementations call an
// external text-generation service and may be slow or unavailable.
type Generator interface {
	Suggest(ctx context.Context, req Request) ([]string, error)
}

// Normalize turns raw suggestions into unique "#tag" tokens, keeping order
// and dropping anything without letters or digits. limit <= 0 means no limit.
func Normalize(raw []string, limit int) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range raw {
		var b strings.Builder
		for _, ch := range strings.TrimLeft(strings.TrimSpace(r), "#") {
			if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
				b.WriteRune(ch)
			}
		}
		if b.Len() == 0 {
			continue
		}
		tag := "#" + b.String()
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Split breaks a free-form model answer into hashtag candidates.
func Split(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || unicode.IsSpace(r)
	})
}
