// Package render turns backend cells, charts and form schemas into HTML.
package render

import "strings"

// Hint selects how overlay content is rendered.
type Hint int

const (
	HintNone Hint = iota
	HintHTML
	HintMarkdown
	HintJSON
)

func (h Hint) String() string {
	switch h {
	case HintHTML:
		return "html"
	case HintMarkdown:
		return "markdown"
	case HintJSON:
		return "json"
	default:
		return "none"
	}
}

var hintPrefixes = []struct {
	prefix string
	hint   Hint
}{
	{"[[html]]", HintHTML},
	{"[[markdown]]", HintMarkdown},
	{"[[json]]", HintJSON},
}

// ParseTitle detects a leading format hint (case-insensitive) and returns it
// together with the title stripped of the hint.
func ParseTitle(title string) (Hint, string) {
	lower := strings.ToLower(title)
	for _, p := range hintPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.hint, title[len(p.prefix):]
		}
	}
	return HintNone, title
}
