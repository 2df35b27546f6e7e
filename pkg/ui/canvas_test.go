package ui

import (
	"strings"
	"testing"

	"github.com/go-go-golems/cardstream/pkg/cards"
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/stretchr/testify/assert"
)

func TestCanvasPut(t *testing.T) {
	c := NewCanvas(6, 2)
	c.Put(1, 0, "abc")
	c.Put(4, 1, "xyz")
	c.Put(-2, 1, "123")
	c.Put(0, 5, "nope")

	assert.Equal(t, " abc  \n3   xy", c.String())
}

func TestCanvasPutWideRunes(t *testing.T) {
	c := NewCanvas(5, 1)
	c.Put(0, 0, "日本語")
	// the third rune does not fit in the last cell
	assert.Equal(t, "日本 ", c.String())

	c.Put(1, 0, "x")
	assert.Equal(t, " x本 ", c.String())
}

func TestDrawCard(t *testing.T) {
	card := cards.New("SMILES Similarity Search", layout.Point{}, extract.ResultRecord{
		"identifier": "CCO",
		"score":      0.25,
		"info":       "ethanol, the one in beer",
	})

	c := NewCanvas(20, 5)
	c.DrawCard(1, 0, layout.Size{Width: 16, Height: 4}, card, false, false)
	lines := strings.Split(c.String(), "\n")

	assert.Equal(t, " ┌ ▾ CCO────────┐   ", lines[0])
	assert.Equal(t, " │info: ethanol…│   ", lines[1])
	assert.Equal(t, " │score: 0.25   │   ", lines[2])
	assert.Equal(t, " └──────────────┘   ", lines[3])
	assert.Equal(t, strings.Repeat(" ", 20), lines[4])
}

func TestDrawCardCollapsedAndSelected(t *testing.T) {
	card := cards.New("tool", layout.Point{}, extract.ResultRecord{"value": 3.0})

	c := NewCanvas(12, 3)
	c.DrawCard(0, 0, layout.Size{Width: 12, Height: 3}, card, true, true)
	lines := strings.Split(c.String(), "\n")

	assert.Equal(t, "╔ ▸ tool═══╗", lines[0])
	assert.Equal(t, strings.Repeat(" ", 12), lines[1])
}
