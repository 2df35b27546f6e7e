package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/cardstream/pkg/activity"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const toolPayload = `{"details":{"name":"SMILES Similarity Search"},"result":{"status":"success","results":[{"identifier":"CCO","score":1},{"identifier":"CCCO","score":0.8}]}}`

// fakeRunner replays a canned response into the sinks of ctx, the way the
// transport does.
type fakeRunner struct {
	mu      sync.Mutex
	queries []string
	chunks  []string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, id uuid.UUID, query string) error {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	meta := events.EventMetadata{ID: id, Query: query}
	events.PublishEventToContext(ctx, events.NewStartEvent(meta))
	completion := ""
	for _, c := range f.chunks {
		completion += c
		events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(meta, c, completion))
	}
	if f.err != nil {
		events.PublishEventToContext(ctx, events.NewErrorEvent(meta, f.err))
		return f.err
	}
	events.PublishEventToContext(ctx, events.NewFinalEvent(meta, completion))
	return nil
}

type collector struct {
	events []events.Event
}

func (c *collector) PublishEvent(e events.Event) error {
	c.events = append(c.events, e)
	return nil
}

func newTestModel(t *testing.T, runner *fakeRunner) (*Model, *collector) {
	t.Helper()
	c := &collector{}
	ctx := events.WithEventSinks(context.Background(), c)
	s := session.New(
		session.WithFootprint(layout.Size{Width: 16, Height: 4}),
		session.WithStrategy(&layout.GridStrategy{}),
	)
	m := NewModel(ctx, s, runner, WithGlamourStyle("ascii"))
	m.Update(tea.WindowSizeMsg{Width: 150, Height: 30})
	return m, c
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// ask submits query and feeds everything the runner published back into the
// model.
func ask(t *testing.T, m *Model, c *collector, query string) {
	t.Helper()
	m.textArea.SetValue(query)
	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)

	done := runCmd(cmd)
	for _, e := range c.events {
		m.Update(StreamEventMsg{Event: e})
	}
	c.events = nil
	m.Update(done)
}

// runCmd runs a batch until it finds the stream result.
func runCmd(cmd tea.Cmd) tea.Msg {
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if done, ok := runCmd(c).(StreamDoneMsg); ok {
				return done
			}
		}
	}
	return msg
}

func TestModel_SubmitSpawnsCards(t *testing.T) {
	runner := &fakeRunner{chunks: []string{
		extract.ToolBlock([]byte(toolPayload)),
		extract.NarrationStart + "Two **close** matches." + extract.NarrationEnd,
	}}
	m, c := newTestModel(t, runner)

	ask(t, m, c, "similar to CCO")
	assert.Equal(t, []string{"similar to CCO"}, runner.queries)
	assert.Equal(t, activity.StateIdle, m.session.State())
	assert.Empty(t, m.textArea.Value())

	list := m.session.Cards()
	require.Len(t, list, 2)
	for _, card := range list {
		r := layout.RectAt(card.Position, m.session.Footprint())
		assert.False(t, r.OverlapsAny(m.Reserved()), "card %v covers a reserved region", card.Position)
	}

	view := m.View()
	assert.Contains(t, view, "CCO")
	assert.Contains(t, view, "CCCO")
	assert.Contains(t, view, "close")
	assert.Contains(t, view, "> similar to CCO")
	assert.Nil(t, m.cancel)
}

func TestModel_EmptyQueryIsIgnored(t *testing.T) {
	m, _ := newTestModel(t, &fakeRunner{})
	m.textArea.SetValue("   ")
	_, cmd := m.Update(keyPress("enter"))
	assert.Nil(t, runCmdOrNil(cmd))
	assert.Empty(t, m.session.Threads())
}

func runCmdOrNil(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				return c()
			}
		}
		return nil
	}
	return msg
}

func TestModel_MoveAndCollapseCards(t *testing.T) {
	runner := &fakeRunner{chunks: []string{extract.ToolBlock([]byte(toolPayload))}}
	m, c := newTestModel(t, runner)
	ask(t, m, c, "similar to CCO")

	// card keys are plain text while the input has focus
	m.Update(keyPress("l"))
	assert.Equal(t, "l", m.textArea.Value())
	m.textArea.Reset()

	m.Update(keyPress("tab"))
	require.Equal(t, focusCards, m.focus)

	first := m.session.Cards()[0]
	m.Update(keyPress("l"))
	m.Update(keyPress("j"))
	moved := m.session.Cards()[0]
	assert.Equal(t, first.Position.X+1, moved.Position.X)
	assert.Equal(t, first.Position.Y+1, moved.Position.Y)

	m.Update(keyPress("n"))
	assert.Equal(t, 1, m.selectedCard)
	m.Update(keyPress("n"))
	assert.Equal(t, 0, m.selectedCard)
	m.Update(keyPress("p"))
	assert.Equal(t, 1, m.selectedCard)

	m.Update(keyPress(" "))
	second := m.session.Cards()[1]
	assert.True(t, m.collapsed[second.ID])
	assert.Contains(t, m.View(), "▸ CCCO")

	// moving is bounded by the canvas
	for i := 0; i < 200; i++ {
		m.Update(keyPress("h"))
	}
	assert.Equal(t, m.paneWidth(), m.session.Cards()[1].Position.X)

	m.Update(keyPress("tab"))
	assert.Equal(t, focusInput, m.focus)
}

func TestModel_SwitchThreads(t *testing.T) {
	runner := &fakeRunner{chunks: []string{extract.ToolBlock([]byte(toolPayload))}}
	m, c := newTestModel(t, runner)
	ask(t, m, c, "first")

	runner.chunks = []string{extract.NarrationStart + "just words" + extract.NarrationEnd}
	ask(t, m, c, "second")
	assert.Empty(t, m.session.Cards())

	m.Update(keyPress("up"))
	active, ok := m.session.ActiveThread()
	require.True(t, ok)
	assert.Equal(t, "first", active.Query)
	assert.Len(t, m.session.Cards(), 2)

	// already at the top
	m.Update(keyPress("up"))
	active, _ = m.session.ActiveThread()
	assert.Equal(t, "first", active.Query)

	m.Update(keyPress("down"))
	active, _ = m.session.ActiveThread()
	assert.Equal(t, "second", active.Query)
	assert.Contains(t, m.View(), "just words")
}

func TestModel_TransportError(t *testing.T) {
	runner := &fakeRunner{
		chunks: []string{extract.NarrationStart + "Half"},
		err:    assert.AnError,
	}
	m, c := newTestModel(t, runner)
	ask(t, m, c, "q")

	assert.Equal(t, assert.AnError, m.err)
	assert.Contains(t, m.View(), session.DefaultErrorText)
	threads := m.session.Threads()
	require.Len(t, threads, 1)
	assert.NotEmpty(t, threads[0].Error)
}

func TestModel_CancelStopsStream(t *testing.T) {
	m, _ := newTestModel(t, &fakeRunner{})
	m.textArea.SetValue("q")
	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	require.NotNil(t, m.cancel)

	ctx := m.ctx
	m.Update(keyPress("esc"))
	assert.Nil(t, m.cancel)
	assert.NoError(t, ctx.Err())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (f *fakeSender) Send(msg tea.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func TestStreamForwardFunc(t *testing.T) {
	p := &fakeSender{}
	forward := StreamForwardFunc(p)

	meta := events.EventMetadata{ID: uuid.New(), Query: "q"}
	payload, err := json.Marshal(events.NewPartialCompletionEvent(meta, "a", "ab"))
	require.NoError(t, err)

	require.NoError(t, forward(message.NewMessage(watermill.NewUUID(), payload)))
	require.NoError(t, forward(message.NewMessage(watermill.NewUUID(), []byte("not json"))))

	require.Len(t, p.msgs, 1)
	ev, ok := p.msgs[0].(StreamEventMsg)
	require.True(t, ok)
	partial, ok := ev.Event.(*events.EventPartialCompletion)
	require.True(t, ok)
	assert.Equal(t, "ab", partial.Completion)
	assert.Equal(t, meta.ID, partial.Metadata().ID)
}

func TestStreamForwardFunc_KeepsChunkOrder(t *testing.T) {
	router, err := events.NewEventRouter(events.WithVerbose(false))
	require.NoError(t, err)

	p := &fakeSender{}
	router.AddHandler("forward", events.TopicStream, StreamForwardFunc(p))

	meta := events.EventMetadata{ID: uuid.New(), Query: "q"}
	const n = 500
	want := ""
	sent := make([]events.Event, 0, n)
	for i := 0; i < n; i++ {
		delta := fmt.Sprintf("%d,", i)
		want += delta
		sent = append(sent, events.NewPartialCompletionEvent(meta, delta, want))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		sink := router.Sink(events.TopicStream)
		for _, ev := range sent {
			if err := sink.PublishEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, eg.Wait())
	require.NoError(t, router.Close())

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.msgs, n)
	got := ""
	for _, msg := range p.msgs {
		ev, ok := msg.(StreamEventMsg)
		require.True(t, ok)
		partial, ok := ev.Event.(*events.EventPartialCompletion)
		require.True(t, ok)
		got += partial.Delta
		require.Equal(t, got, partial.Completion)
	}
	assert.Equal(t, want, got)
}

func TestView_BeforeResize(t *testing.T) {
	m := NewModel(context.Background(), session.New(), &fakeRunner{})
	assert.True(t, strings.HasPrefix(m.View(), "Initializing"))
}
