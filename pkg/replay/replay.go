// Package replay feeds recorded streams into a session, for debugging layouts
// and extraction without a server.
package replay

import (
	"io"
	"os"

	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Fixture is a recorded stream. A fixture that neither ends nor fails leaves
// its thread streaming.
type Fixture struct {
	Query  string   `yaml:"query"`
	Chunks []string `yaml:"chunks"`
	End    bool     `yaml:"end"`
	Error  string   `yaml:"error,omitempty"`
}

func Load(r io.Reader) ([]Fixture, error) {
	dec := yaml.NewDecoder(r)
	ret := []Fixture{}
	for {
		var f Fixture
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "could not decode fixture")
		}
		if f.Query == "" {
			return nil, errors.Errorf("fixture %d has no query", len(ret))
		}
		ret = append(ret, f)
	}
	return ret, nil
}

func LoadFile(path string) ([]Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Play submits the fixture to s and publishes its chunks as stream events.
// step, when set, is called after every event with the thread id.
func Play(s *session.Session, f Fixture, step func(id uuid.UUID, ev events.Event)) (uuid.UUID, error) {
	id, err := s.Submit(f.Query)
	if err != nil {
		return uuid.Nil, err
	}

	meta := events.EventMetadata{ID: id, Query: f.Query}
	publish := func(ev events.Event) error {
		if err := s.PublishEvent(ev); err != nil {
			return err
		}
		if step != nil {
			step(id, ev)
		}
		return nil
	}

	if err := publish(events.NewStartEvent(meta)); err != nil {
		return id, err
	}

	completion := ""
	for _, c := range f.Chunks {
		completion += c
		if err := publish(events.NewPartialCompletionEvent(meta, c, completion)); err != nil {
			return id, err
		}
	}

	switch {
	case f.Error != "":
		return id, publish(events.NewErrorEvent(meta, errors.New(f.Error)))
	case f.End:
		return id, publish(events.NewFinalEvent(meta, completion))
	default:
		return id, nil
	}
}
