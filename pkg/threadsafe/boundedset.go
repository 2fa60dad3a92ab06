package threadsafe

import "sync"

// BoundedSet is a set with a size limit. When an insert would grow the set past
// the limit, the whole set is cleared first. Entries flushed this way can be
// re-admitted as if never seen, which callers must tolerate.
type BoundedSet[T comparable] struct {
	inner map[T]struct{}
	limit int
	mux   *sync.Mutex
}

func NewBoundedSet[T comparable](limit int) *BoundedSet[T] {
	return &BoundedSet[T]{
		inner: make(map[T]struct{}),
		limit: limit,
		mux:   &sync.Mutex{},
	}
}

func (s *BoundedSet[T]) Add(item T) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.inner[item]; ok {
		return false
	}
	if len(s.inner) >= s.limit {
		s.inner = make(map[T]struct{})
	}
	s.inner[item] = struct{}{}
	return true
}

func (s *BoundedSet[T]) Contains(item T) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.inner[item]
	return ok
}

func (s *BoundedSet[T]) Remove(item T) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.inner[item]; !ok {
		return false
	}
	delete(s.inner, item)
	return true
}

func (s *BoundedSet[T]) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.inner)
}
