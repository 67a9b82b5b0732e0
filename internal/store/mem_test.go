package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	d, err := s.Create(ctx, "order flow", "<definitions/>")
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	assert.Equal(t, "order flow", d.Name)

	got, err := s.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "<definitions/>", got.Content)

	require.NoError(t, s.UpdateContent(ctx, d.ID, "<definitions><process/></definitions>"))
	got, err = s.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "<definitions><process/></definitions>", got.Content)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Empty(t, docs[0].Content, "list omits content")
}

func TestMemStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "b2f7c1de-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateContent(ctx, "b2f7c1de-0000-4000-8000-000000000000", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultContentOnCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	d, err := s.Create(ctx, "blank", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultDiagramXML, d.Content)
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, Seed(ctx, s))
	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Simple Approval Process", docs[0].Name)

	require.NoError(t, Seed(ctx, s))
	docs, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "seeding again must not duplicate")
}
