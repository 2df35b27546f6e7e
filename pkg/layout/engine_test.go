package layout

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed int64) *RandomStrategy {
	return NewRandomStrategy(DefaultMaxAttempts, rand.New(rand.NewSource(seed)))
}

func TestPlaceBatch_NeverOverlaps(t *testing.T) {
	footprint := Size{Width: 20, Height: 3}
	reserved := []Rect{
		{X: 0, Y: 0, Width: 30, Height: 40},
		{X: 0, Y: 36, Width: 120, Height: 4},
	}

	for seed := int64(0); seed < 50; seed++ {
		e := NewEngine(Size{Width: 120, Height: 40}, footprint, seeded(seed))
		placed := e.PlaceBatch(reserved, 30)

		rects := []Rect{}
		for _, p := range placed {
			r := RectAt(p.Position, footprint)
			assert.GreaterOrEqual(t, r.X, 0)
			assert.GreaterOrEqual(t, r.Y, 0)
			assert.LessOrEqual(t, r.X+r.Width, 120)
			assert.LessOrEqual(t, r.Y+r.Height, 40)
			assert.False(t, r.OverlapsAny(reserved), "seed %d: card overlaps reserved region", seed)
			assert.False(t, r.OverlapsAny(rects), "seed %d: card overlaps another card", seed)
			rects = append(rects, r)
		}
	}
}

func TestPlaceBatch_KeepsBatchOrder(t *testing.T) {
	e := NewEngine(Size{Width: 200, Height: 100}, Size{Width: 10, Height: 2}, seeded(1))
	placed := e.PlaceBatch(nil, 5)

	require.Len(t, placed, 5)
	for i, p := range placed {
		assert.Equal(t, i, p.Index)
	}
}

func TestPlaceBatch_InfeasibleSurface(t *testing.T) {
	footprint := Size{Width: 20, Height: 3}

	for _, surface := range []Size{
		{Width: 19, Height: 100},
		{Width: 100, Height: 2},
		{Width: 0, Height: 0},
	} {
		e := NewEngine(surface, footprint, seeded(7))
		assert.Empty(t, e.PlaceBatch(nil, 3), "%+v", surface)

		g := NewEngine(surface, footprint, &GridStrategy{})
		assert.Empty(t, g.PlaceBatch(nil, 3), "%+v", surface)
	}
}

func TestPlaceBatch_DropsWhatDoesNotFit(t *testing.T) {
	// Exactly one footprint fits, so the second card must be dropped.
	e := NewEngine(Size{Width: 20, Height: 3}, Size{Width: 20, Height: 3}, &GridStrategy{})
	placed := e.PlaceBatch(nil, 3)

	require.Len(t, placed, 1)
	assert.Equal(t, Placement{Index: 0, Position: Point{}}, placed[0])
}

func TestPlaceBatch_FullyReservedSurface(t *testing.T) {
	surface := Size{Width: 50, Height: 20}
	e := NewEngine(surface, Size{Width: 5, Height: 2}, seeded(3))
	placed := e.PlaceBatch([]Rect{{X: 0, Y: 0, Width: 50, Height: 20}}, 4)
	assert.Empty(t, placed)
}

func TestGridStrategy_RowMajor(t *testing.T) {
	footprint := Size{Width: 4, Height: 1}
	e := NewEngine(Size{Width: 20, Height: 10}, footprint, &GridStrategy{})
	placed := e.PlaceBatch(nil, 3)

	require.Len(t, placed, 3)
	// Touching counts as overlap, so cards sit one cell apart.
	assert.Equal(t, Point{X: 0, Y: 0}, placed[0].Position)
	assert.Equal(t, Point{X: 5, Y: 0}, placed[1].Position)
	assert.Equal(t, Point{X: 10, Y: 0}, placed[2].Position)
}

func TestRandomStrategy_Deterministic(t *testing.T) {
	a := NewEngine(Size{Width: 100, Height: 50}, Size{Width: 10, Height: 3}, seeded(42)).PlaceBatch(nil, 4)
	b := NewEngine(Size{Width: 100, Height: 50}, Size{Width: 10, Height: 3}, seeded(42)).PlaceBatch(nil, 4)
	assert.Equal(t, a, b)
}

func TestNewRandomStrategy_Defaults(t *testing.T) {
	s := NewRandomStrategy(0, nil)
	assert.Equal(t, DefaultMaxAttempts, s.MaxAttempts)
	assert.NotNil(t, s.rng)
}
