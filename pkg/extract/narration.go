// Package extract recovers the narration and tool invocation sub-streams from
// the raw text of a streamed response.
package extract

import "github.com/go-go-golems/cardstream/pkg/markers"

const (
	NarrationStart = "<# Chat Response Start#>"
	NarrationEnd   = "<# Chat Response End#>"
	ToolTagName    = "Tool Response"
)

var (
	narrationStart = markers.Literal(NarrationStart)
	narrationEnd   = markers.Literal(NarrationEnd)
	toolTag        = markers.NewTag(ToolTagName)
)

// Narration returns the best known narration for a raw response. Until the
// start marker arrives the raw text is returned as is.
func Narration(raw string) string {
	if raw == "" {
		return ""
	}
	return markers.Between(raw, narrationStart, narrationEnd)
}

// ToolBlock formats a payload the way the stream server embeds it.
func ToolBlock(payload []byte) string {
	return "<# " + ToolTagName + " #>\n" + string(payload) + "\n<# " + ToolTagName + " #>\n"
}
