// Package cards holds the cards currently spawned on the surface.
package cards

import (
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

type Card struct {
	ID       uuid.UUID            `json:"id" yaml:"id"`
	Position layout.Point         `json:"position" yaml:"position"`
	Kind     string               `json:"kind,omitempty" yaml:"kind,omitempty"`
	Content  extract.ResultRecord `json:"content" yaml:"content"`
}

// New creates a card with a fresh id. The record is deep copied so the card
// content cannot change under the registry.
func New(kind string, pos layout.Point, record extract.ResultRecord) Card {
	return Card{
		ID:       uuid.New(),
		Position: pos,
		Kind:     kind,
		Content:  cloneRecord(record),
	}
}

func cloneRecord(record extract.ResultRecord) extract.ResultRecord {
	ret, _ := clone.Clone(record).(extract.ResultRecord)
	if ret == nil {
		ret = extract.ResultRecord{}
	}
	return ret
}

// detached returns c with its own copy of the content.
func (c Card) detached() Card {
	c.Content = cloneRecord(c.Content)
	return c
}

// Registry is not safe for concurrent use.
type Registry struct {
	cards []Card
	index map[uuid.UUID]int
}

func NewRegistry() *Registry {
	return &Registry{index: map[uuid.UUID]int{}}
}

// ReplaceAll swaps the whole visible set.
func (r *Registry) ReplaceAll(cards []Card) {
	next := make([]Card, len(cards))
	for i, c := range cards {
		next[i] = c.detached()
	}
	index := make(map[uuid.UUID]int, len(next))
	for i, c := range next {
		index[c.ID] = i
	}
	r.cards, r.index = next, index
}

func (r *Registry) Clear() {
	r.ReplaceAll(nil)
}

// UpdatePosition moves one card. It returns false for an unknown id.
func (r *Registry) UpdatePosition(id uuid.UUID, pos layout.Point) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.cards[i].Position = pos
	return true
}

func (r *Registry) Get(id uuid.UUID) (Card, bool) {
	i, ok := r.index[id]
	if !ok {
		return Card{}, false
	}
	return r.cards[i].detached(), true
}

// All returns copies of the cards in spawn order.
func (r *Registry) All() []Card {
	ret := make([]Card, len(r.cards))
	for i, c := range r.cards {
		ret[i] = c.detached()
	}
	return ret
}

func (r *Registry) Len() int {
	return len(r.cards)
}
