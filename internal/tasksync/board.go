// Package tasksync keeps a user's task collection in memory and applies
// mutations optimistically before the store confirms them.
package tasksync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
)

// Listener is notified with a copy of the collection after every local change
type Listener func(tasks []model.Task)

// Board owns one user's in-memory task collection.
//
// Every mutation is applied locally first and then sent to the store:
//   - a confirmed create or update replaces the local record with the stored one
//   - a failed create drops the provisional record
//   - a failed update reloads the whole collection from the store, falling back
//     to the pre-update record when the reload fails too
//   - a failed delete puts the removed record back at the front
//
// Concurrent calls on the same id are not coordinated; the last local write wins.
type Board struct {
	userID string
	store  store.Store

	mu        sync.RWMutex
	tasks     []model.Task
	revision  uint64
	listeners []Listener

	now   func() time.Time
	newID func() string
}

// NewBoard seeds a board from an initial snapshot (newest first)
func NewBoard(userID string, st store.Store, initial []model.Task) *Board {
	tasks := make([]model.Task, len(initial))
	copy(tasks, initial)
	return &Board{
		userID: userID,
		store:  st,
		tasks:  tasks,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// UserID returns the owner of the collection
func (b *Board) UserID() string {
	return b.userID
}

// Snapshot returns a copy of the collection and its revision
func (b *Board) Snapshot() ([]model.Task, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyLocked(), b.revision
}

// Revision increases on every local change
func (b *Board) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// Get returns the local record for id
func (b *Board) Get(id string) (model.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.indexLocked(id); i >= 0 {
		return b.tasks[i], true
	}
	return model.Task{}, false
}

// Subscribe registers fn for change notifications
func (b *Board) Subscribe(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Create inserts a provisional task at the front and replaces it with the stored record once confirmed.
func (b *Board) Create(ctx context.Context, draft model.Task) (model.Task, error) {
	draft.UserID = b.userID
	draft.ID = ""
	if err := draft.Validate(); err != nil {
		return model.Task{}, err
	}

	provisional := draft
	provisional.ID = b.newID()
	now := b.now()
	provisional.CreatedAt = now
	provisional.UpdatedAt = now

	b.mutate(func() {
		b.tasks = append([]model.Task{provisional}, b.tasks...)
	})

	confirmed, err := b.store.InsertTask(ctx, draft)
	if err != nil {
		b.mutate(func() {
			if i := b.indexLocked(provisional.ID); i >= 0 {
				b.removeLocked(i)
			}
		})
		log.Printf("[TaskSync] Failed to create task for user %s: %v", b.userID, err)
		return model.Task{}, err
	}

	b.mutate(func() {
		if i := b.indexLocked(provisional.ID); i >= 0 {
			b.tasks[i] = confirmed
		}
	})
	return confirmed, nil
}

// Update merges patch into the local record, then persists it.
// Updating an id that is not held locally still goes to the store.
func (b *Board) Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}

	var (
		previous model.Task
		found    bool
	)
	b.mutate(func() {
		if i := b.indexLocked(id); i >= 0 {
			previous, found = b.tasks[i], true
			merged := patch.Apply(previous)
			merged.UpdatedAt = b.now()
			b.tasks[i] = merged
		}
	})

	confirmed, err := b.store.UpdateTask(ctx, id, patch)
	if err != nil {
		log.Printf("[TaskSync] Failed to update task %s: %v", id, err)
		b.reconcile(ctx, func() {
			if !found {
				return
			}
			if i := b.indexLocked(id); i >= 0 {
				b.tasks[i] = previous
			}
		})
		return model.Task{}, err
	}

	b.mutate(func() {
		if i := b.indexLocked(id); i >= 0 {
			b.tasks[i] = confirmed
		}
	})
	return confirmed, nil
}

// Delete removes the local record, then deletes it from the store.
// On failure the removed record is restored at the front.
func (b *Board) Delete(ctx context.Context, id string) error {
	var (
		removed model.Task
		found   bool
	)
	b.mutate(func() {
		if i := b.indexLocked(id); i >= 0 {
			removed, found = b.tasks[i], true
			b.removeLocked(i)
		}
	})

	if err := b.store.DeleteTask(ctx, id); err != nil {
		if found {
			b.mutate(func() {
				b.tasks = append([]model.Task{removed}, b.tasks...)
			})
		}
		log.Printf("[TaskSync] Failed to delete task %s: %v", id, err)
		return err
	}
	return nil
}

// Reload replaces the local collection with the store's view
func (b *Board) Reload(ctx context.Context) error {
	tasks, err := b.store.ListTasks(ctx, store.TaskQuery{UserID: b.userID})
	if err != nil {
		return err
	}
	b.mutate(func() {
		b.tasks = tasks
	})
	return nil
}

// reconcile reloads from the store and runs fallback when the reload fails
func (b *Board) reconcile(ctx context.Context, fallback func()) {
	if err := b.Reload(ctx); err != nil {
		log.Printf("[TaskSync] Reload for user %s failed, restoring local copy: %v", b.userID, err)
		b.mutate(fallback)
	}
}

// mutate runs fn under the write lock, bumps the revision and notifies listeners
func (b *Board) mutate(fn func()) {
	b.mu.Lock()
	fn()
	b.revision++
	snapshot := b.copyLocked()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (b *Board) indexLocked(id string) int {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) removeLocked(i int) {
	b.tasks = append(b.tasks[:i:i], b.tasks[i+1:]...)
}

func (b *Board) copyLocked() []model.Task {
	out := make([]model.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}
