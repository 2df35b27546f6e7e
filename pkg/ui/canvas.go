package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-go-golems/cardstream/pkg/cards"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/mattn/go-runewidth"
)

// Canvas is a grid of terminal cells. A wide rune occupies its cell and
// leaves an empty string in the cell after it.
type Canvas struct {
	Width  int
	Height int
	cells  [][]string
}

func NewCanvas(width, height int) *Canvas {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	ret := &Canvas{Width: width, Height: height, cells: make([][]string, height)}
	for y := range ret.cells {
		row := make([]string, width)
		for x := range row {
			row[x] = " "
		}
		ret.cells[y] = row
	}
	return ret
}

// Put writes s starting at x, y. Anything outside the canvas is clipped.
func (c *Canvas) Put(x, y int, s string) {
	if y < 0 || y >= c.Height {
		return
	}
	row := c.cells[y]
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x >= c.Width {
			return
		}
		if x >= 0 {
			if x+w > c.Width {
				c.set(row, x, " ")
				return
			}
			c.set(row, x, string(r))
			if w == 2 {
				c.set(row, x+1, "")
			}
		}
		x += w
	}
}

func (c *Canvas) set(row []string, x int, v string) {
	if row[x] == "" && x > 0 {
		row[x-1] = " "
	}
	if x+1 < len(row) && row[x+1] == "" && v != "" {
		row[x+1] = " "
	}
	row[x] = v
}

func (c *Canvas) String() string {
	lines := make([]string, len(c.cells))
	for y, row := range c.cells {
		lines[y] = strings.Join(row, "")
	}
	return strings.Join(lines, "\n")
}

type border struct {
	topLeft, top, topRight, side, bottomLeft, bottomRight string
}

var (
	normalBorder   = border{"┌", "─", "┐", "│", "└", "┘"}
	selectedBorder = border{"╔", "═", "╗", "║", "╚", "╝"}
)

// DrawCard paints a card with its top-left corner at x, y. A collapsed card
// only shows its title row.
func (c *Canvas) DrawCard(x, y int, size layout.Size, card cards.Card, selected bool, collapsed bool) {
	if size.Width < 4 || size.Height < 1 {
		return
	}
	b := normalBorder
	if selected {
		b = selectedBorder
	}

	title, body := cardText(card)
	marker := "▾"
	if collapsed {
		marker = "▸"
	}
	title = runewidth.Truncate(marker+" "+title, size.Width-4, "…")
	fill := size.Width - 3 - runewidth.StringWidth(title)
	c.Put(x, y, b.topLeft+" "+title+strings.Repeat(b.top, fill)+b.topRight)

	if collapsed || size.Height < 2 {
		return
	}

	inner := size.Width - 2
	for i := 0; i < size.Height-2; i++ {
		line := ""
		if i < len(body) {
			line = runewidth.Truncate(body[i], inner, "…")
		}
		c.Put(x, y+1+i, b.side+runewidth.FillRight(line, inner)+b.side)
	}
	c.Put(x, y+size.Height-1, b.bottomLeft+strings.Repeat(b.top, inner)+b.bottomRight)
}

// cardText returns the title and the remaining fields of a card as lines.
func cardText(card cards.Card) (string, []string) {
	title := card.Kind
	if id, ok := card.Content["identifier"]; ok {
		title = formatValue(id)
	}
	if title == "" {
		title = "card"
	}

	keys := make([]string, 0, len(card.Content))
	for k := range card.Content {
		if k != "identifier" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	body := make([]string, 0, len(keys))
	for _, k := range keys {
		body = append(body, k+": "+formatValue(card.Content[k]))
	}
	return title, body
}

func formatValue(v interface{}) string {
	switch v_ := v.(type) {
	case string:
		return v_
	case float64:
		return strconv.FormatFloat(v_, 'g', 4, 64)
	case nil:
		return "null"
	default:
		return fmt.Sprint(v_)
	}
}
