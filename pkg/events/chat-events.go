package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart to EventTypeInterrupt describe the raw stream of a thread
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"
	EventTypeInterrupt         EventType = "interrupt"

	// Derived from the raw stream by the session
	EventTypeNarration EventType = "narration"
	EventTypeCards     EventType = "cards"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson), not further used
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

// EventMetadata ties an event to the thread it belongs to.
type EventMetadata struct {
	ID    uuid.UUID              `json:"thread_id" yaml:"thread_id"`
	Query string                 `json:"query,omitempty" yaml:"query,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("thread_id", em.ID.String())
	if em.Query != "" {
		e.Str("query", em.Query)
	}
	if len(em.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(em.Extra))
	}
}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{
			Type_:     EventTypeStart,
			Metadata_: metadata,
		},
	}
}

var _ Event = &EventStart{}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the raw text received so far, including Delta
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl: EventImpl{
			Type_:     EventTypePartialCompletion,
			Metadata_: metadata,
		},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartialCompletion{}

// EventFinal is sent when the end of stream sentinel arrives.
type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

// EventInterrupt is sent when the client closed the stream before the
// sentinel arrived.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{
			Type_:     EventTypeInterrupt,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventInterrupt{}

type EventNarration struct {
	EventImpl
	Text string `json:"text"`
}

func NewNarrationEvent(metadata EventMetadata, text string) *EventNarration {
	return &EventNarration{
		EventImpl: EventImpl{
			Type_:     EventTypeNarration,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventNarration{}

// EventCards reports a rebuild of the card registry.
type EventCards struct {
	EventImpl
	Tool    string `json:"tool,omitempty"`
	Count   int    `json:"count"`
	Dropped int    `json:"dropped"`
}

func NewCardsEvent(metadata EventMetadata, tool string, count int, dropped int) *EventCards {
	return &EventCards{
		EventImpl: EventImpl{
			Type_:     EventTypeCards,
			Metadata_: metadata,
		},
		Tool:    tool,
		Count:   count,
		Dropped: dropped,
	}
}

var _ Event = &EventCards{}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return toTyped[EventStart](e)
	case EventTypePartialCompletion:
		return toTyped[EventPartialCompletion](e)
	case EventTypeFinal:
		return toTyped[EventFinal](e)
	case EventTypeError:
		return toTyped[EventError](e)
	case EventTypeInterrupt:
		return toTyped[EventInterrupt](e)
	case EventTypeNarration:
		return toTyped[EventNarration](e)
	case EventTypeCards:
		return toTyped[EventCards](e)
	}

	return e, nil
}

type payloadSetter interface {
	setPayload(b []byte)
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}

func toTyped[T any](e *EventImpl) (Event, error) {
	ret, ok := ToTypedEvent[T](e)
	if !ok {
		return nil, fmt.Errorf("could not cast event to %T", ret)
	}
	ev, ok := any(ret).(Event)
	if !ok {
		return nil, fmt.Errorf("%T is not an event", ret)
	}
	if s, ok := ev.(payloadSetter); ok {
		s.setPayload(e.payload)
	}
	return ev, nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}

	return ret, true
}

func (e EventPartialCompletion) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("delta", e.Delta).Int("completion_len", len(e.Completion))
}

func (e EventFinal) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Int("text_len", len(e.Text))
}

func (e EventError) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("error", e.ErrorString)
}

func (e EventInterrupt) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Int("text_len", len(e.Text))
}

func (e EventNarration) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("text", e.Text)
}

func (e EventCards) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("tool", e.Tool).Int("count", e.Count).Int("dropped", e.Dropped)
}
