package extract

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type cacheEntry struct {
	span       string
	invocation *ToolInvocation
	ok         bool
}

// Extractor remembers the last decoded tool span per thread, so rescans of a
// stable payload skip the JSON decode.
type Extractor struct {
	cache map[uuid.UUID]cacheEntry
}

func NewExtractor() *Extractor {
	return &Extractor{cache: map[uuid.UUID]cacheEntry{}}
}

func (e *Extractor) Narration(raw string) string {
	return Narration(raw)
}

func (e *Extractor) ToolInvocation(id uuid.UUID, raw string) (*ToolInvocation, bool) {
	span := toolSpan(raw)
	if c, ok := e.cache[id]; ok && c.span == span {
		return c.invocation, c.ok
	}

	inv, ok := decodeSpan(span)
	e.cache[id] = cacheEntry{span: span, invocation: inv, ok: ok}
	if ok {
		log.Debug().
			Str("thread_id", id.String()).
			Str("tool", inv.Name()).
			Bool("success", inv.Succeeded()).
			Msg("decoded tool invocation")
	}
	return inv, ok
}

func (e *Extractor) Forget(id uuid.UUID) {
	delete(e.cache, id)
}
