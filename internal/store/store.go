// Package store persists whole-document snapshots. The collaboration core
// only ever reads a document on session start and writes it back whole;
// there is no partial update surface.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID        string
	Name      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	// List returns all documents without their content.
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Create(ctx context.Context, name, content string) (Document, error)
	UpdateContent(ctx context.Context, id, content string) error
}
