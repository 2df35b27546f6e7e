package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SubmitMessage    key.Binding
	SwitchFocus      key.Binding
	SelectPrevThread key.Binding
	SelectNextThread key.Binding
	SelectNextCard   key.Binding
	SelectPrevCard   key.Binding
	MoveLeft         key.Binding
	MoveDown         key.Binding
	MoveUp           key.Binding
	MoveRight        key.Binding
	ToggleCollapse   key.Binding
	CancelCompletion key.Binding
	Quit             key.Binding
}

var DefaultKeyMap = KeyMap{
	SubmitMessage:    key.NewBinding(key.WithKeys("enter")),
	SwitchFocus:      key.NewBinding(key.WithKeys("tab")),
	SelectPrevThread: key.NewBinding(key.WithKeys("up")),
	SelectNextThread: key.NewBinding(key.WithKeys("down")),
	SelectNextCard:   key.NewBinding(key.WithKeys("n")),
	SelectPrevCard:   key.NewBinding(key.WithKeys("p")),
	MoveLeft:         key.NewBinding(key.WithKeys("h")),
	MoveDown:         key.NewBinding(key.WithKeys("j")),
	MoveUp:           key.NewBinding(key.WithKeys("k")),
	MoveRight:        key.NewBinding(key.WithKeys("l")),
	ToggleCollapse:   key.NewBinding(key.WithKeys(" ")),
	CancelCompletion: key.NewBinding(key.WithKeys("esc")),
	Quit:             key.NewBinding(key.WithKeys("ctrl+c")),
}

// updateKeyBindings enables the card keys only while the canvas has focus, so
// that they can be typed into the input otherwise.
func (m *Model) updateKeyBindings() {
	cards := m.focus == focusCards
	for _, b := range []*key.Binding{
		&m.keyMap.SelectNextCard,
		&m.keyMap.SelectPrevCard,
		&m.keyMap.MoveLeft,
		&m.keyMap.MoveDown,
		&m.keyMap.MoveUp,
		&m.keyMap.MoveRight,
		&m.keyMap.ToggleCollapse,
	} {
		b.SetEnabled(cards)
	}
	m.keyMap.SubmitMessage.SetEnabled(!cards)
}
