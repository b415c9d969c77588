package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

type fixedOwner uint

func (o fixedOwner) Owner(context.Context, repository.ModerationStore, uint) (uint, error) {
	return uint(o), nil
}

func TestTargetRegistryBuiltins(t *testing.T) {
	registry := NewTargetRegistry()

	require.Equal(t, []string{"comment", "event", "group", "post", "user"}, registry.Types())

	_, ok := registry.Removable(models.TargetTypePost)
	require.True(t, ok)
	_, ok = registry.Removable(models.TargetTypeUser)
	require.False(t, ok)
	_, ok = registry.Removable("video")
	require.False(t, ok)

	_, ok = registry.Lookup("  POST ")
	require.True(t, ok)
}

func TestTargetRegistryOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	owner := store.addUser(models.User{Username: "owner"})
	store.addContent(models.TargetTypeComment, 9, owner.ID)

	registry := NewTargetRegistry()

	id, err := registry.Owner(ctx, store, models.TargetTypeComment, 9)
	require.NoError(t, err)
	require.Equal(t, owner.ID, id)

	id, err = registry.Owner(ctx, store, models.TargetTypeUser, owner.ID)
	require.NoError(t, err)
	require.Equal(t, owner.ID, id)

	_, err = registry.Owner(ctx, store, models.TargetTypeComment, 10)
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = registry.Owner(ctx, store, models.TargetTypeUser, 404)
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = registry.Owner(ctx, store, "video", 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestTargetRegistryRegisterOverrides(t *testing.T) {
	registry := NewTargetRegistry()
	registry.Register("Video", fixedOwner(42))

	require.Contains(t, registry.Types(), "video")

	id, err := registry.Owner(context.Background(), newMemStore(), "video", 1)
	require.NoError(t, err)
	require.Equal(t, uint(42), id)

	_, ok := registry.Removable("video")
	require.False(t, ok)
}
