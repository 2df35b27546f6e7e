package layout

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultMaxAttempts = 100

// Strategy picks a top-left corner for a footprint inside a surface, avoiding
// the occupied rectangles.
type Strategy interface {
	Find(surface Size, footprint Size, occupied []Rect) (Point, bool)
}

// RandomStrategy samples uniformly random positions until one is free.
type RandomStrategy struct {
	MaxAttempts int
	rng         *rand.Rand
}

func NewRandomStrategy(maxAttempts int, rng *rand.Rand) *RandomStrategy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomStrategy{MaxAttempts: maxAttempts, rng: rng}
}

func (s *RandomStrategy) Find(surface Size, footprint Size, occupied []Rect) (Point, bool) {
	if !fits(surface, footprint) {
		return Point{}, false
	}
	for i := 0; i < s.MaxAttempts; i++ {
		p := Point{
			X: s.rng.Intn(surface.Width - footprint.Width + 1),
			Y: s.rng.Intn(surface.Height - footprint.Height + 1),
		}
		if !RectAt(p, footprint).OverlapsAny(occupied) {
			return p, true
		}
	}
	return Point{}, false
}

// GridStrategy scans positions row by row and takes the first free one.
type GridStrategy struct {
	Step int
}

func (s *GridStrategy) Find(surface Size, footprint Size, occupied []Rect) (Point, bool) {
	if !fits(surface, footprint) {
		return Point{}, false
	}
	step := s.Step
	if step <= 0 {
		step = 1
	}
	for y := 0; y+footprint.Height <= surface.Height; y += step {
		for x := 0; x+footprint.Width <= surface.Width; x += step {
			p := Point{X: x, Y: y}
			if !RectAt(p, footprint).OverlapsAny(occupied) {
				return p, true
			}
		}
	}
	return Point{}, false
}

func fits(surface Size, footprint Size) bool {
	return footprint.Width > 0 && footprint.Height > 0 &&
		surface.Width >= footprint.Width && surface.Height >= footprint.Height
}

type Placement struct {
	// Index is the position of the record in the batch.
	Index    int
	Position Point
}

type Engine struct {
	Surface   Size
	Footprint Size
	Strategy  Strategy
}

func NewEngine(surface Size, footprint Size, strategy Strategy) *Engine {
	if strategy == nil {
		strategy = NewRandomStrategy(DefaultMaxAttempts, nil)
	}
	return &Engine{Surface: surface, Footprint: footprint, Strategy: strategy}
}

// Place finds a position for a single card.
func (e *Engine) Place(reserved []Rect) (Point, bool) {
	return e.Strategy.Find(e.Surface, e.Footprint, reserved)
}

// PlaceBatch places n cards in order. Every placed card reserves its footprint
// for the ones after it. Cards that find no room are left out.
func (e *Engine) PlaceBatch(reserved []Rect, n int) []Placement {
	occupied := append([]Rect{}, reserved...)
	ret := []Placement{}

	for i := 0; i < n; i++ {
		p, ok := e.Place(occupied)
		if !ok {
			log.Debug().Int("index", i).Msg("no room for card, dropping it")
			continue
		}
		ret = append(ret, Placement{Index: i, Position: p})
		occupied = append(occupied, RectAt(p, e.Footprint))
	}

	return ret
}
