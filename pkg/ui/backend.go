package ui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StreamEventMsg carries a transport event into the program's update loop.
type StreamEventMsg struct {
	Event events.Event
}

// StreamDoneMsg is sent once the transport for a thread returned.
type StreamDoneMsg struct {
	ID  uuid.UUID
	Err error
}

// Runner streams the response to query, publishing events to the sinks
// attached to ctx.
type Runner interface {
	Run(ctx context.Context, id uuid.UUID, query string) error
}

type Sender interface {
	Send(msg tea.Msg)
}

// StreamForwardFunc returns a router handler that hands every decoded event to
// the program. The message is acked only once the program took it, so chunks
// reach the update loop in publish order.
func StreamForwardFunc(p Sender) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to parse event from message payload")
			return nil
		}
		p.Send(StreamEventMsg{Event: e})
		return nil
	}
}

func runStream(ctx context.Context, r Runner, id uuid.UUID, query string) tea.Cmd {
	return func() tea.Msg {
		err := r.Run(ctx, id, query)
		return StreamDoneMsg{ID: id, Err: err}
	}
}
