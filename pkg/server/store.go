package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrDuplicateQuery = errors.New("query id already submitted")

// QueryStore holds submitted queries until their stream is opened.
type QueryStore struct {
	mu      sync.Mutex
	queries map[uuid.UUID]string
}

func NewQueryStore() *QueryStore {
	return &QueryStore{queries: map[uuid.UUID]string{}}
}

func (s *QueryStore) Put(id uuid.UUID, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queries[id]; ok {
		return ErrDuplicateQuery
	}
	s.queries[id] = query
	return nil
}

// Take returns the query and forgets it, so a stream can only be opened once.
func (s *QueryStore) Take(id uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if ok {
		delete(s.queries, id)
	}
	return q, ok
}

func (s *QueryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}
