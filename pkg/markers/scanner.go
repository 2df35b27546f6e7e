// Package markers locates marker-delimited regions inside a growing text
// buffer. Scanning is stateless: callers rescan the full buffer on every chunk.
package markers

import (
	"regexp"
	"strings"
)

// Token finds a boundary marker in a text. Locate returns the byte offsets of
// the first occurrence starting at or after from, or (-1, -1).
type Token interface {
	Locate(text string, from int) (int, int)
}

// Literal matches its exact bytes.
type Literal string

func (l Literal) Locate(text string, from int) (int, int) {
	if from > len(text) || l == "" {
		return -1, -1
	}
	idx := strings.Index(text[from:], string(l))
	if idx < 0 {
		return -1, -1
	}
	start := from + idx
	return start, start + len(l)
}

// Tag matches `<#`, optional whitespace, a name, optional whitespace, `#>`.
// Streamed tags are not always spaced consistently, so `<#Tool Response#>` and
// `<# Tool Response #>` are the same tag.
type Tag struct {
	Name string
	re   *regexp.Regexp
}

func NewTag(name string) *Tag {
	return &Tag{
		Name: name,
		re:   regexp.MustCompile(`<#\s*` + regexp.QuoteMeta(name) + `\s*#>`),
	}
}

func (t *Tag) Locate(text string, from int) (int, int) {
	if from > len(text) {
		return -1, -1
	}
	loc := t.re.FindStringIndex(text[from:])
	if loc == nil {
		return -1, -1
	}
	return from + loc[0], from + loc[1]
}

type State int

const (
	// Absent means the start token has not been seen yet.
	Absent State = iota
	// Open means the start token was seen but no end token follows it.
	Open
	// Closed means both tokens were found.
	Closed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Extract struct {
	Content string
	State   State
}

// Scan returns the text between the first start token and the first end token
// after it. With no end token the region runs to the end of the text. With no
// start token the text is returned unchanged.
func Scan(text string, start, end Token) Extract {
	_, s := start.Locate(text, 0)
	if s < 0 {
		return Extract{Content: text, State: Absent}
	}

	e, _ := end.Locate(text, s)
	if e < 0 {
		return Extract{Content: strings.TrimSpace(text[s:]), State: Open}
	}

	return Extract{Content: strings.TrimSpace(text[s:e]), State: Closed}
}

// Between is Scan without the state.
func Between(text string, start, end Token) string {
	return Scan(text, start, end).Content
}
