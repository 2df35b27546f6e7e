// Package session ties the extractors, the activity tracker, the layout engine
// and the card registry together. A Session consumes stream events and keeps
// the display state the UI reads.
package session

import (
	"strings"

	"github.com/go-go-golems/cardstream/pkg/activity"
	"github.com/go-go-golems/cardstream/pkg/cards"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultErrorText = "Error: Failed to get response"

var (
	ErrEmptyQuery = activity.ErrEmptyQuery
	ErrBusy       = activity.ErrBusy
)

// Session is the state of one conversational surface. It is not safe for
// concurrent use: every method must be called from the same event loop.
type Session struct {
	next      events.EventSink
	errorText string

	tracker   *activity.Tracker
	extractor *extract.Extractor
	registry  *cards.Registry
	engine    *layout.Engine
	reserved  []layout.Rect

	narrations map[uuid.UUID]string
}

type Option func(*Session)

// WithNext sets the sink derived narration and card events are published to.
func WithNext(next events.EventSink) Option {
	return func(s *Session) {
		if next != nil {
			s.next = next
		}
	}
}

func WithFootprint(footprint layout.Size) Option {
	return func(s *Session) {
		s.engine.Footprint = footprint
	}
}

func WithStrategy(strategy layout.Strategy) Option {
	return func(s *Session) {
		s.engine.Strategy = strategy
	}
}

func WithSurface(surface layout.Size, reserved ...layout.Rect) Option {
	return func(s *Session) {
		s.SetSurface(surface, reserved...)
	}
}

// WithErrorText replaces the narration shown for a failed stream.
func WithErrorText(text string) Option {
	return func(s *Session) {
		s.errorText = text
	}
}

var (
	// DefaultSurface is a plain 80x24 terminal.
	DefaultSurface   = layout.Size{Width: 80, Height: 24}
	DefaultFootprint = layout.Size{Width: 28, Height: 4}
)

// New creates an idle session. Cards are placed on DefaultSurface with no
// reserved regions until WithSurface or SetSurface says otherwise.
func New(options ...Option) *Session {
	ret := &Session{
		next:       events.NullSink{},
		errorText:  DefaultErrorText,
		tracker:    activity.NewTracker(),
		extractor:  extract.NewExtractor(),
		registry:   cards.NewRegistry(),
		engine:     layout.NewEngine(DefaultSurface, DefaultFootprint, nil),
		narrations: map[uuid.UUID]string{},
	}

	for _, o := range options {
		o(ret)
	}

	return ret
}

// SetSurface sets the placement surface and the regions cards must avoid.
// It applies to the next spawned batch.
func (s *Session) SetSurface(surface layout.Size, reserved ...layout.Rect) {
	s.engine.Surface = surface
	s.reserved = append([]layout.Rect{}, reserved...)
}

// Submit registers a new thread for query and makes it the active one. The
// caller then runs the transport for the returned id and feeds its events
// back through PublishEvent.
func (s *Session) Submit(query string) (uuid.UUID, error) {
	id := uuid.New()
	th, err := s.tracker.Begin(id, query)
	if err != nil {
		return uuid.Nil, err
	}

	log.Debug().Str("thread_id", id.String()).Str("query", query).Msg("submitted query")
	if err := s.reconcile(th); err != nil {
		log.Warn().Err(err).Msg("could not publish card event")
	}

	return id, nil
}

// SetActiveThread selects a thread. It is a no-op while a response is
// streaming.
func (s *Session) SetActiveThread(id uuid.UUID) bool {
	if !s.tracker.SetActive(id) {
		return false
	}
	th, _ := s.tracker.Thread(id)
	log.Debug().Str("thread_id", id.String()).Msg("active thread changed")
	if err := s.reconcile(th); err != nil {
		log.Warn().Err(err).Msg("could not publish card event")
	}
	return true
}

// Narration returns the narration of a thread. A failed thread gets the error
// text appended.
func (s *Session) Narration(id uuid.UUID) string {
	th, ok := s.tracker.Thread(id)
	if !ok {
		return ""
	}
	return s.narrationOf(th)
}

func (s *Session) Cards() []cards.Card {
	return s.registry.All()
}

func (s *Session) MoveCard(id uuid.UUID, x, y int) bool {
	return s.registry.UpdatePosition(id, layout.Point{X: x, Y: y})
}

func (s *Session) Footprint() layout.Size {
	return s.engine.Footprint
}

func (s *Session) State() activity.State {
	return s.tracker.State()
}

// Threads returns copies of the threads in submission order.
func (s *Session) Threads() []activity.Thread {
	list := s.tracker.Threads()
	ret := make([]activity.Thread, 0, len(list))
	for _, th := range list {
		ret = append(ret, *th)
	}
	return ret
}

func (s *Session) ActiveThread() (activity.Thread, bool) {
	th, ok := s.tracker.Active()
	if !ok {
		return activity.Thread{}, false
	}
	return *th, true
}

// ToolInvocation returns the decoded tool invocation of a thread, if any.
func (s *Session) ToolInvocation(id uuid.UUID) (*extract.ToolInvocation, bool) {
	th, ok := s.tracker.Thread(id)
	if !ok {
		return nil, false
	}
	return s.extractor.ToolInvocation(id, th.Raw)
}

// PublishEvent applies a transport event and forwards it, followed by any
// derived events, to the next sink.
func (s *Session) PublishEvent(ev events.Event) error {
	id := ev.Metadata().ID

	switch e := ev.(type) {
	case *events.EventPartialCompletion:
		th, ok := s.tracker.Append(id, e.Delta)
		if !ok {
			log.Debug().Str("thread_id", id.String()).Msg("dropping chunk for a thread that is not streaming")
			return nil
		}
		if err := s.forward(ev); err != nil {
			return err
		}
		return s.changed(th)

	case *events.EventFinal:
		if th, ok := s.tracker.Thread(id); ok && len(e.Text) > len(th.Raw) && strings.HasPrefix(e.Text, th.Raw) {
			// chunks that never reached us are still part of the final text
			s.tracker.Append(id, e.Text[len(th.Raw):])
		}
		th, ok := s.tracker.Finish(id)
		if !ok {
			return nil
		}
		log.Debug().Str("thread_id", id.String()).Int("raw_len", len(th.Raw)).Msg("stream complete")
		if err := s.changed(th); err != nil {
			return err
		}
		return s.forward(ev)

	case *events.EventInterrupt:
		th, ok := s.tracker.Finish(id)
		if !ok {
			return nil
		}
		log.Debug().Str("thread_id", id.String()).Msg("stream interrupted")
		if err := s.changed(th); err != nil {
			return err
		}
		return s.forward(ev)

	case *events.EventError:
		th, ok := s.tracker.Fail(id, s.errorText)
		if !ok {
			return nil
		}
		log.Warn().Str("thread_id", id.String()).Str("error", e.ErrorString).Msg("stream failed")
		if err := s.changed(th); err != nil {
			return err
		}
		return s.forward(ev)

	default:
		return s.forward(ev)
	}
}

func (s *Session) forward(ev events.Event) error {
	return s.next.PublishEvent(ev)
}

func (s *Session) narrationOf(th *activity.Thread) string {
	n := s.extractor.Narration(th.Raw)
	if th.Error == "" {
		return n
	}
	if n == "" {
		return th.Error
	}
	return n + "\n\n" + th.Error
}

func metadataOf(th *activity.Thread) events.EventMetadata {
	return events.EventMetadata{ID: th.ID, Query: th.Query}
}

func (s *Session) changed(th *activity.Thread) error {
	n := s.narrationOf(th)
	if prev, ok := s.narrations[th.ID]; !ok || prev != n {
		s.narrations[th.ID] = n
		if err := s.next.PublishEvent(events.NewNarrationEvent(metadataOf(th), n)); err != nil {
			return err
		}
	}

	if !s.tracker.IsActive(th.ID) {
		return nil
	}
	return s.reconcile(th)
}

// reconcile makes the registry match the decoded payload of the active thread.
// Once a batch was spawned for the current selection it is left alone, so
// moved cards stay where the user put them.
func (s *Session) reconcile(th *activity.Thread) error {
	if th == nil || s.tracker.Spawned(th.ID) {
		return nil
	}

	inv, ok := s.extractor.ToolInvocation(th.ID, th.Raw)
	if !ok || !inv.Succeeded() {
		if s.registry.Len() == 0 {
			return nil
		}
		s.registry.Clear()
		return s.next.PublishEvent(events.NewCardsEvent(metadataOf(th), inv.Name(), 0, 0))
	}

	batch := inv.Batch()
	placements := s.engine.PlaceBatch(s.reserved, len(batch))

	list := make([]cards.Card, 0, len(placements))
	for _, p := range placements {
		list = append(list, cards.New(inv.Name(), p.Position, batch[p.Index]))
	}
	s.registry.ReplaceAll(list)
	s.tracker.MarkSpawned(th.ID)

	dropped := len(batch) - len(placements)
	log.Debug().
		Str("thread_id", th.ID.String()).
		Str("tool", inv.Name()).
		Int("placed", len(placements)).
		Int("dropped", dropped).
		Msg("spawned cards")

	return s.next.PublishEvent(events.NewCardsEvent(metadataOf(th), inv.Name(), len(placements), dropped))
}
