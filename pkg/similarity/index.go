// Package similarity is an in-memory molecule similarity index.
package similarity

import (
	"context"
	_ "embed"
	"io"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed data/molecules.yaml
var defaultDataset []byte

type Molecule struct {
	Identifier string            `yaml:"identifier" json:"identifier"`
	Name       string            `yaml:"name" json:"name"`
	Info       map[string]string `yaml:"info" json:"info"`
}

// Result is one search hit. The fields are the card content shown to users.
type Result struct {
	Identifier string            `json:"identifier" yaml:"identifier"`
	Score      float64           `json:"score" yaml:"score"`
	Image      string            `json:"image,omitempty" yaml:"image,omitempty"`
	Info       map[string]string `json:"info" yaml:"info"`
}

func LoadDataset(r io.Reader) ([]Molecule, error) {
	var ret []Molecule
	if err := yaml.NewDecoder(r).Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "could not decode molecule dataset")
	}
	for i, m := range ret {
		if m.Identifier == "" {
			return nil, errors.Errorf("molecule %d has no identifier", i)
		}
	}
	return ret, nil
}

func DefaultDataset() []Molecule {
	ret := []Molecule{}
	if err := yaml.Unmarshal(defaultDataset, &ret); err != nil {
		panic(errors.Wrap(err, "embedded molecule dataset is broken"))
	}
	return ret
}

type Index struct {
	collection *chromem.Collection
}

func NewIndex(ctx context.Context, molecules []Molecule) (*Index, error) {
	embedder := NewNgramEmbedder()
	db := chromem.NewDB()
	collection, err := db.CreateCollection("molecules", nil, embedder.Embed)
	if err != nil {
		return nil, errors.Wrap(err, "could not create collection")
	}

	docs := make([]chromem.Document, 0, len(molecules))
	for _, m := range molecules {
		metadata := map[string]string{"name": m.Name}
		for k, v := range m.Info {
			metadata[k] = v
		}
		docs = append(docs, chromem.Document{
			ID:       m.Identifier,
			Content:  m.Identifier,
			Metadata: metadata,
		})
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, errors.Wrap(err, "could not index molecules")
		}
	}

	return &Index{collection: collection}, nil
}

func (i *Index) Len() int {
	return i.collection.Count()
}

// Search returns up to k molecules ordered by decreasing similarity.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k > i.collection.Count() {
		k = i.collection.Count()
	}
	if k <= 0 {
		return []Result{}, nil
	}

	hits, err := i.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "similarity query failed")
	}

	ret := make([]Result, 0, len(hits))
	for _, h := range hits {
		info := map[string]string{}
		for key, v := range h.Metadata {
			info[key] = v
		}
		ret = append(ret, Result{
			Identifier: h.Content,
			Score:      float64(h.Similarity),
			Info:       info,
		})
	}
	sort.SliceStable(ret, func(a, b int) bool {
		return ret[a].Score > ret[b].Score
	})

	return ret, nil
}
