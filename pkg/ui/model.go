package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/cardstream/pkg/activity"
	"github.com/go-go-golems/cardstream/pkg/cards"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type focus int

const (
	focusInput focus = iota
	focusCards
)

const (
	headerHeight = 1
	inputHeight  = 3
	minPaneWidth = 24
)

// Model is the chat screen. Every session call happens in Update, which makes
// the program loop the session's only writer.
type Model struct {
	ctx     context.Context
	session *session.Session
	runner  Runner
	// cancel stops the stream of the streaming thread
	cancel    context.CancelFunc
	streaming uuid.UUID

	textArea     textarea.Model
	focus        focus
	selectedCard int
	// collapse state is presentation only and keyed by card id
	collapsed map[uuid.UUID]bool

	keyMap       KeyMap
	style        *Style
	glamourStyle string
	renderer     *glamour.TermRenderer
	narration    string

	err    error
	width  int
	height int
}

type ModelOption func(*Model)

func WithGlamourStyle(style string) ModelOption {
	return func(m *Model) {
		m.glamourStyle = style
	}
}

// NewModel creates the chat screen. ctx is passed to the runner for every
// query and must carry the sinks that feed StreamEventMsg back to the program.
func NewModel(ctx context.Context, s *session.Session, runner Runner, options ...ModelOption) *Model {
	ret := &Model{
		ctx:          ctx,
		session:      s,
		runner:       runner,
		collapsed:    map[uuid.UUID]bool{},
		keyMap:       DefaultKeyMap,
		style:        DefaultStyles(),
		glamourStyle: "dark",
	}
	for _, o := range options {
		o(ret)
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask about a molecule..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(1)
	ret.textArea.Focus()

	ret.updateKeyBindings()

	return ret
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.stopStream()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.CancelCompletion):
			m.stopStream()

		case key.Matches(msg, m.keyMap.SwitchFocus):
			if m.focus == focusInput {
				m.focus = focusCards
				m.textArea.Blur()
			} else {
				m.focus = focusInput
				cmds = append(cmds, m.textArea.Focus())
			}
			m.updateKeyBindings()

		case key.Matches(msg, m.keyMap.SelectPrevThread):
			m.selectThread(-1)

		case key.Matches(msg, m.keyMap.SelectNextThread):
			m.selectThread(1)

		case key.Matches(msg, m.keyMap.SubmitMessage):
			if cmd := m.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}

		case key.Matches(msg, m.keyMap.SelectNextCard):
			m.selectCard(1)
		case key.Matches(msg, m.keyMap.SelectPrevCard):
			m.selectCard(-1)
		case key.Matches(msg, m.keyMap.MoveLeft):
			m.moveCard(-1, 0)
		case key.Matches(msg, m.keyMap.MoveDown):
			m.moveCard(0, 1)
		case key.Matches(msg, m.keyMap.MoveUp):
			m.moveCard(0, -1)
		case key.Matches(msg, m.keyMap.MoveRight):
			m.moveCard(1, 0)

		case key.Matches(msg, m.keyMap.ToggleCollapse):
			if c, ok := m.selected(); ok {
				m.collapsed[c.ID] = !m.collapsed[c.ID]
			}

		default:
			if m.focus == focusInput {
				var cmd tea.Cmd
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case StreamEventMsg:
		if err := m.session.PublishEvent(msg.Event); err != nil {
			log.Warn().Err(err).Msg("could not apply stream event")
		}
		m.refresh()

	case StreamDoneMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
		}
		if msg.ID == m.streaming {
			m.stopStream()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	query := strings.TrimSpace(m.textArea.Value())
	if query == "" {
		return nil
	}

	id, err := m.session.Submit(query)
	if err != nil {
		m.err = err
		return nil
	}
	m.err = nil
	m.textArea.Reset()
	m.refresh()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.streaming = id
	return runStream(ctx, m.runner, id, query)
}

func (m *Model) stopStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.streaming = uuid.Nil
}

func (m *Model) selectThread(delta int) {
	threads := m.session.Threads()
	if len(threads) == 0 {
		return
	}
	idx := len(threads) - 1
	if active, ok := m.session.ActiveThread(); ok {
		for i, th := range threads {
			if th.ID == active.ID {
				idx = i
			}
		}
	}
	next := idx + delta
	if next < 0 || next >= len(threads) {
		return
	}
	if m.session.SetActiveThread(threads[next].ID) {
		m.selectedCard = 0
		m.refresh()
	}
}

func (m *Model) selected() (cards.Card, bool) {
	list := m.session.Cards()
	if m.selectedCard < 0 || m.selectedCard >= len(list) {
		return cards.Card{}, false
	}
	return list[m.selectedCard], true
}

func (m *Model) selectCard(delta int) {
	n := len(m.session.Cards())
	if n == 0 {
		return
	}
	m.selectedCard = ((m.selectedCard+delta)%n + n) % n
}

func (m *Model) moveCard(dx, dy int) {
	c, ok := m.selected()
	if !ok {
		return
	}
	fp := m.session.Footprint()
	x := clamp(c.Position.X+dx, m.paneWidth(), m.width-fp.Width)
	y := clamp(c.Position.Y+dy, headerHeight, m.height-inputHeight-fp.Height)
	m.session.MoveCard(c.ID, x, y)
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func (m *Model) paneWidth() int {
	w := m.width / 3
	if w < minPaneWidth {
		w = minPaneWidth
	}
	if w > m.width {
		w = m.width
	}
	return w
}

func (m *Model) bodyHeight() int {
	h := m.height - headerHeight - inputHeight
	if h < 0 {
		return 0
	}
	return h
}

// Reserved returns the regions cards must not cover: the header, the thread
// pane and the input.
func (m *Model) Reserved() []layout.Rect {
	return []layout.Rect{
		{X: 0, Y: 0, Width: m.width, Height: headerHeight},
		{X: 0, Y: 0, Width: m.paneWidth(), Height: m.height},
		{X: 0, Y: m.height - inputHeight, Width: m.width, Height: inputHeight},
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.session.SetSurface(layout.Size{Width: width, Height: height}, m.Reserved()...)

	h, _ := m.style.FocusedInput.GetFrameSize()
	m.textArea.SetWidth(width - h)

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.glamourStyle),
		glamour.WithWordWrap(m.paneWidth()-4),
	)
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer")
		r = nil
	}
	m.renderer = r
	m.refresh()
}

// refresh re-renders the narration of the active thread and drops view state
// of cards that are gone.
func (m *Model) refresh() {
	m.narration = ""
	if th, ok := m.session.ActiveThread(); ok {
		text := m.session.Narration(th.ID)
		m.narration = text
		if m.renderer != nil && text != "" {
			if out, err := m.renderer.Render(text); err == nil {
				m.narration = strings.Trim(out, "\n")
			}
		}
	}

	list := m.session.Cards()
	live := map[uuid.UUID]bool{}
	for _, c := range list {
		live[c.ID] = true
	}
	for id := range m.collapsed {
		if !live[id] {
			delete(m.collapsed, id)
		}
	}
	if m.selectedCard >= len(list) {
		m.selectedCard = 0
	}
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := m.style.Header.Render(m.headerText())
	if m.err != nil {
		header += " " + m.style.Error.Render(m.err.Error())
	}
	header = lipgloss.NewStyle().MaxWidth(m.width).Render(header)

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.paneView(), m.canvasView())

	input := m.style.BlurredInput
	if m.focus == focusInput {
		input = m.style.FocusedInput
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input.Render(m.textArea.View()))
}

func (m *Model) headerText() string {
	state := "idle"
	if m.session.State() == activity.StateRunning {
		state = "streaming"
	}
	return fmt.Sprintf("cardstream · %s · %d threads · %d cards", state, len(m.session.Threads()), len(m.session.Cards()))
}

func (m *Model) paneView() string {
	w := m.paneWidth() - 2
	h := m.bodyHeight() - 2
	if w <= 0 || h <= 0 {
		return ""
	}

	lines := []string{}
	active, _ := m.session.ActiveThread()
	for _, th := range m.session.Threads() {
		suffix := ""
		switch {
		case th.Error != "":
			suffix = " !"
		case !th.Complete:
			suffix = " …"
		}
		line := runewidth.Truncate(th.Query, w-2-runewidth.StringWidth(suffix), "…") + suffix
		if th.ID == active.ID {
			lines = append(lines, m.style.ActiveThread.Render("> "+line))
		} else {
			lines = append(lines, m.style.Thread.Render("  "+line))
		}
	}

	if m.narration != "" {
		lines = append(lines, "")
		lines = append(lines, strings.Split(m.narration, "\n")...)
	}
	if len(lines) > h {
		// keep the tail, that is where a streaming narration grows
		lines = lines[len(lines)-h:]
	}

	return m.style.Pane.Width(w).Height(h).Render(strings.Join(lines, "\n"))
}

func (m *Model) canvasView() string {
	ox := m.paneWidth()
	c := NewCanvas(m.width-ox, m.bodyHeight())
	fp := m.session.Footprint()
	for i, card := range m.session.Cards() {
		selected := m.focus == focusCards && i == m.selectedCard
		c.DrawCard(card.Position.X-ox, card.Position.Y-headerHeight, fp, card, selected, m.collapsed[card.ID])
	}

	style := m.style.Canvas
	if m.focus == focusCards {
		style = m.style.FocusedCanvas
	}
	return style.Render(c.String())
}
