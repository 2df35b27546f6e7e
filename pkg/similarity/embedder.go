package similarity

import (
	"context"
	"hash/fnv"
	"math"
)

const DefaultDimensions = 512

// NgramEmbedder hashes character n-grams of a string into a fixed size,
// normalized vector. It needs no model, and strings sharing substructures
// end up close to each other.
type NgramEmbedder struct {
	Dimensions int
	MinN       int
	MaxN       int
}

func NewNgramEmbedder() *NgramEmbedder {
	return &NgramEmbedder{Dimensions: DefaultDimensions, MinN: 1, MaxN: 4}
}

func (e *NgramEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dimensions)
	runes := []rune(text)

	for n := e.MinN; n <= e.MaxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			h := fnv.New32a()
			_, _ = h.Write([]byte(string(runes[i : i+n])))
			// longer shared fragments say more about structure
			vec[h.Sum32()%uint32(e.Dimensions)] += float32(n)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// chromem rejects zero vectors, so empty strings get a fixed direction
		vec[0] = 1
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
