package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// NarrationPrinter writes narration to w as it grows. When the narration is
// rewritten instead of extended (the start marker arrived) it restarts the
// block on a fresh line.
type NarrationPrinter struct {
	w       io.Writer
	name    string
	printed map[uuid.UUID]string
}

func NewNarrationPrinter(name string, w io.Writer) *NarrationPrinter {
	return &NarrationPrinter{
		w:       w,
		name:    name,
		printed: map[uuid.UUID]string{},
	}
}

func (p *NarrationPrinter) PublishEvent(e Event) error {
	id := e.Metadata().ID

	switch p_ := e.(type) {
	case *EventNarration:
		return p.narration(id, p_.Text)

	case *EventCards:
		tool := p_.Tool
		if tool == "" {
			tool = "tool"
		}
		_, err := fmt.Fprintf(p.w, "\n[%s] %d cards placed, %d dropped\n", tool, p_.Count, p_.Dropped)
		return err

	case *EventError:
		_, err := fmt.Fprintf(p.w, "\n[error] %s\n", p_.ErrorString)
		return err

	case *EventFinal, *EventInterrupt:
		if s, ok := p.printed[id]; ok && !strings.HasSuffix(s, "\n") {
			_, err := fmt.Fprintln(p.w)
			return err
		}
	}

	return nil
}

func (p *NarrationPrinter) narration(id uuid.UUID, text string) error {
	prev, seen := p.printed[id]
	p.printed[id] = text

	if !seen && p.name != "" {
		if _, err := fmt.Fprintf(p.w, "\n%s: \n", p.name); err != nil {
			return err
		}
	}

	if strings.HasPrefix(text, prev) {
		_, err := fmt.Fprint(p.w, text[len(prev):])
		return err
	}

	_, err := fmt.Fprintf(p.w, "\n---\n%s", text)
	return err
}

var _ EventSink = (*NarrationPrinter)(nil)
