package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/storage"
)

func TestStore_SaveAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.Save(ctx, models.Sprite{X: 1, ID: 99})
	require.NoError(t, err)
	b, err := s.Save(ctx, models.Sprite{X: 2})
	require.NoError(t, err)

	assert.Equal(t, models.SpriteID(1), a)
	assert.Equal(t, models.SpriteID(2), b)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].X)
	assert.Equal(t, a, all[0].ID)
}

func TestStore_UpdateAllPartialFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(
		models.Sprite{ID: 1, X: 1},
		models.Sprite{ID: 2, X: 2},
		models.Sprite{ID: 3, X: 3},
	)
	boom := errors.New("disk on fire")
	s.FailEntry(2, boom)

	err := s.UpdateAll(ctx, []models.Sprite{
		{ID: 1, X: 10},
		{ID: 2, X: 20},
		{ID: 3, X: 30},
		{ID: 4, X: 40},
	})
	ue, ok := storage.AsUpdateError(err)
	require.True(t, ok)
	assert.Equal(t, []models.SpriteID{2, 4}, ue.FailedIDs())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	one, _ := s.Get(1)
	two, _ := s.Get(2)
	three, _ := s.Get(3)
	assert.Equal(t, 10, one.X)
	assert.Equal(t, 2, two.X)
	assert.Equal(t, 30, three.X)
}

func TestStore_UpdateAllWholeFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(models.Sprite{ID: 1, X: 1})
	s.FailUpdateAll(storage.ErrUnavailable)

	err := s.UpdateAll(ctx, []models.Sprite{{ID: 1, X: 5}})
	require.ErrorIs(t, err, storage.ErrUnavailable)
	_, isPartial := storage.AsUpdateError(err)
	assert.False(t, isPartial)

	got, _ := s.Get(1)
	assert.Equal(t, 1, got.X)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	_, err := s.Save(ctx, models.Sprite{})
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.UpdateAll(ctx, nil), storage.ErrClosed)
	_, err = s.LoadAll(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestStore_SeedMovesCounter(t *testing.T) {
	s := New()
	s.Seed(models.Sprite{ID: 7})
	id, err := s.Save(context.Background(), models.Sprite{})
	require.NoError(t, err)
	assert.Equal(t, models.SpriteID(8), id)
}
