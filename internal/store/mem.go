package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store used by tests and by servers run without a
// database. Contents live for the process lifetime only.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]Document)}
}

func (s *MemStore) List(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		d.Content = ""
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (s *MemStore) Create(ctx context.Context, name, content string) (Document, error) {
	if content == "" {
		content = DefaultDiagramXML
	}
	now := time.Now().UTC()
	d := Document{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.docs[d.ID] = d
	s.mu.Unlock()
	return d, nil
}

func (s *MemStore) UpdateContent(ctx context.Context, id, content string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.Content = content
	d.UpdatedAt = time.Now().UTC()
	s.docs[id] = d
	return nil
}
