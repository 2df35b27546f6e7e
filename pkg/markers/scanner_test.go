package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan_Literal(t *testing.T) {
	start := Literal("<start>")
	end := Literal("<end>")

	tests := []struct {
		name    string
		text    string
		content string
		state   State
	}{
		{"no start passes through", "  hello  ", "  hello  ", Absent},
		{"open region runs to end", "x <start>  hello ", "hello", Open},
		{"closed region is trimmed", "<start> hello <end> tail", "hello", Closed},
		{"first end after start wins", "<start>a<end>b<end>", "a", Closed},
		{"end before start is ignored", "<end><start>a", "a", Open},
		{"first start wins", "<start>a<start>b<end>", "a<start>b", Closed},
		{"empty text", "", "", Absent},
		{"empty region", "<start><end>", "", Closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.text, start, end)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, tt.state, got.State)
		})
	}
}

func TestScan_SameTokenBothEnds(t *testing.T) {
	tok := Literal("|")

	assert.Equal(t, Extract{Content: "a", State: Closed}, Scan("|a|b|", tok, tok))
	assert.Equal(t, Extract{Content: "a", State: Open}, Scan("| a", tok, tok))
}

func TestTag_ToleratesSpacing(t *testing.T) {
	tag := NewTag("Tool Response")

	for _, text := range []string{
		"<#Tool Response#>{}<#Tool Response#>",
		"<# Tool Response #>\n{}\n<# Tool Response #>\n",
		"<#  Tool Response\t#>{}<#Tool Response #>",
	} {
		got := Scan(text, tag, tag)
		assert.Equal(t, Closed, got.State, text)
		assert.Equal(t, "{}", got.Content, text)
	}

	s, e := tag.Locate("abc", 0)
	assert.Equal(t, -1, s)
	assert.Equal(t, -1, e)
	s, e = tag.Locate("abc", 10)
	assert.Equal(t, -1, s)
	assert.Equal(t, -1, e)
}

func TestScan_ShortestSpan(t *testing.T) {
	tag := NewTag("T")
	got := Scan("<#T#>one<#T#>two<#T#>", tag, tag)
	assert.Equal(t, "one", got.Content)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}
