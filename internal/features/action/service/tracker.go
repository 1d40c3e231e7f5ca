package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/action/models"
)

const defaultTrackerLimit = 200

// Tracker keeps actions in memory so status pages can poll them.
type Tracker struct {
	mu      sync.RWMutex
	actions map[string]*models.Action
	done    map[string]chan struct{}
	order   []string
	limit   int
	now     func() time.Time
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = defaultTrackerLimit
	}
	return &Tracker{
		actions: make(map[string]*models.Action),
		done:    make(map[string]chan struct{}),
		limit:   limit,
		now:     time.Now,
	}
}

func (t *Tracker) create(kind models.Kind, key string, params map[string]string) models.Action {
	now := t.now()
	a := &models.Action{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		State:     models.StateValidating,
		Params:    params,
		Result:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[a.ID] = a
	t.done[a.ID] = make(chan struct{})
	t.order = append(t.order, a.ID)
	t.evict()
	return a.Clone()
}

// evict drops the oldest finished actions above the limit.
func (t *Tracker) evict() {
	for len(t.order) > t.limit {
		dropped := false
		for i, id := range t.order {
			if t.actions[id].State.Terminal() {
				delete(t.actions, id)
				delete(t.done, id)
				t.order = append(t.order[:i], t.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}

// update applies fn and wakes waiters once the action becomes terminal.
func (t *Tracker) update(id string, fn func(a *models.Action)) models.Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.actions[id]
	if !ok {
		return models.Action{}
	}
	wasTerminal := a.State.Terminal()
	fn(a)
	a.UpdatedAt = t.now()
	if !wasTerminal && a.State.Terminal() {
		close(t.done[id])
	}
	return a.Clone()
}

func (t *Tracker) Get(id string) (models.Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.actions[id]
	if !ok {
		return models.Action{}, false
	}
	return a.Clone(), true
}

// Recent returns up to n actions, newest first; n <= 0 means all.
func (t *Tracker) Recent(n int) []models.Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.order) {
		n = len(t.order)
	}
	out := make([]models.Action, 0, n)
	for i := len(t.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t.actions[t.order[i]].Clone())
	}
	return out
}

// Wait blocks until the action is confirmed or failed, or ctx ends.
func (t *Tracker) Wait(ctx context.Context, id string) (models.Action, error) {
	t.mu.RLock()
	done, ok := t.done[id]
	t.mu.RUnlock()
	if !ok {
		return models.Action{}, apperrors.NewNotFoundError("action", id)
	}

	select {
	case <-done:
		a, _ := t.Get(id)
		return a, nil
	case <-ctx.Done():
		a, _ := t.Get(id)
		return a, ctx.Err()
	}
}
