package events

// EventSink is a destination for stream events.
type EventSink interface {
	PublishEvent(event Event) error
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error {
	return nil
}

var _ EventSink = NullSink{}

// SinkFunc adapts a function to an EventSink.
type SinkFunc func(event Event) error

func (f SinkFunc) PublishEvent(event Event) error {
	return f(event)
}
