// Package layout places fixed-size cards on a surface so that they overlap
// neither reserved regions nor each other.
package layout

type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func RectAt(p Point, s Size) Rect {
	return Rect{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

// Overlaps reports whether both projections intersect. Touching edges count.
func (r Rect) Overlaps(o Rect) bool {
	return r.X+r.Width >= o.X &&
		r.X <= o.X+o.Width &&
		r.Y+r.Height >= o.Y &&
		r.Y <= o.Y+o.Height
}

func (r Rect) OverlapsAny(others []Rect) bool {
	for _, o := range others {
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}
