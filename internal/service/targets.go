package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// TargetHandler resolves the owner of a moderation target.
type TargetHandler interface {
	Owner(ctx context.Context, store repository.ModerationStore, id uint) (uint, error)
}

// Removable is implemented by targets that support soft removal.
type Removable interface {
	Remove(ctx context.Context, store repository.ModerationStore, id uint) (bool, error)
	Restore(ctx context.Context, store repository.ModerationStore, id uint) (bool, error)
}

// TargetRegistry maps target types to their handlers.
type TargetRegistry struct {
	handlers map[string]TargetHandler
}

// NewTargetRegistry returns a registry with the built-in content and user handlers.
func NewTargetRegistry() *TargetRegistry {
	registry := &TargetRegistry{handlers: make(map[string]TargetHandler)}
	for _, targetType := range []string{
		models.TargetTypePost,
		models.TargetTypeComment,
		models.TargetTypeGroup,
		models.TargetTypeEvent,
	} {
		registry.Register(targetType, contentTarget{targetType: targetType})
	}
	registry.Register(models.TargetTypeUser, userTarget{})
	return registry
}

// Register installs or replaces the handler for a target type.
func (r *TargetRegistry) Register(targetType string, handler TargetHandler) {
	r.handlers[strings.ToLower(strings.TrimSpace(targetType))] = handler
}

// Lookup returns the handler registered for the target type.
func (r *TargetRegistry) Lookup(targetType string) (TargetHandler, bool) {
	handler, ok := r.handlers[strings.ToLower(strings.TrimSpace(targetType))]
	return handler, ok
}

// Types lists the registered target types.
func (r *TargetRegistry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for targetType := range r.handlers {
		types = append(types, targetType)
	}
	sort.Strings(types)
	return types
}

// Owner returns the account that owns the target. Missing targets yield ErrTargetNotFound.
func (r *TargetRegistry) Owner(ctx context.Context, store repository.ModerationStore, targetType string, id uint) (uint, error) {
	handler, ok := r.Lookup(targetType)
	if !ok {
		return 0, validationError("unsupported target type %q", targetType)
	}
	owner, err := handler.Owner(ctx, store, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: %s %d", ErrTargetNotFound, targetType, id)
		}
		return 0, err
	}
	return owner, nil
}

// Removable returns the removal capability for the target type, if any.
func (r *TargetRegistry) Removable(targetType string) (Removable, bool) {
	handler, ok := r.Lookup(targetType)
	if !ok {
		return nil, false
	}
	removable, ok := handler.(Removable)
	return removable, ok
}

type contentTarget struct {
	targetType string
}

func (t contentTarget) Owner(ctx context.Context, store repository.ModerationStore, id uint) (uint, error) {
	return store.Content().Owner(ctx, t.targetType, id)
}

func (t contentTarget) Remove(ctx context.Context, store repository.ModerationStore, id uint) (bool, error) {
	return store.Content().SoftDelete(ctx, t.targetType, id)
}

func (t contentTarget) Restore(ctx context.Context, store repository.ModerationStore, id uint) (bool, error) {
	return store.Content().Restore(ctx, t.targetType, id)
}

// userTarget only answers ownership; accounts are sanctioned through suspension.
type userTarget struct{}

func (userTarget) Owner(ctx context.Context, store repository.ModerationStore, id uint) (uint, error) {
	user, err := store.Accounts().GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
