package tasksync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cexll/pomotask/internal/store"
)

// DefaultBoardLimit is how many users keep a board in memory at once
const DefaultBoardLimit = 1000

// EvictFunc is called with the user whose board was dropped from the registry
type EvictFunc func(userID string)

type registryEntry struct {
	board    *Board
	lastUsed uint64
}

// Registry hands out one Board per user, seeded lazily from the store.
// Once more than limit users hold a board, the least recently used one is dropped
// and reseeds from the store on its next use.
type Registry struct {
	store store.Store
	limit int

	mu      sync.Mutex
	boards  map[string]*registryEntry
	tick    uint64
	onEvict []EvictFunc
}

// NewRegistry creates an empty registry holding up to DefaultBoardLimit boards
func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store:  st,
		limit:  DefaultBoardLimit,
		boards: make(map[string]*registryEntry),
	}
}

// WithLimit sets how many boards stay cached. Values below 1 keep the current limit.
func (r *Registry) WithLimit(n int) *Registry {
	if n > 0 {
		r.mu.Lock()
		r.limit = n
		r.mu.Unlock()
	}
	return r
}

// OnEvict registers fn to run after a board is dropped
func (r *Registry) OnEvict(fn EvictFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Board returns the user's board, loading the initial snapshot on first use
func (r *Registry) Board(ctx context.Context, userID string) (*Board, error) {
	r.mu.Lock()
	if e, ok := r.boards[userID]; ok {
		r.touchLocked(e)
		r.mu.Unlock()
		return e.board, nil
	}
	r.mu.Unlock()

	initial, err := r.store.ListTasks(ctx, store.TaskQuery{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("load tasks for %s: %w", userID, err)
	}

	r.mu.Lock()
	// Another request may have seeded the board while we were loading.
	if e, ok := r.boards[userID]; ok {
		r.touchLocked(e)
		r.mu.Unlock()
		return e.board, nil
	}
	e := &registryEntry{board: NewBoard(userID, r.store, initial)}
	r.touchLocked(e)
	r.boards[userID] = e
	evicted := r.shrinkLocked()
	hooks := append([]EvictFunc(nil), r.onEvict...)
	r.mu.Unlock()

	r.notifyEvicted(hooks, evicted)
	return e.board, nil
}

// Forget drops the user's board so the next use reseeds it from the store
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	_, ok := r.boards[userID]
	delete(r.boards, userID)
	hooks := append([]EvictFunc(nil), r.onEvict...)
	r.mu.Unlock()

	if ok {
		r.notifyEvicted(hooks, []string{userID})
	}
}

// Len reports how many boards are cached
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// TasksChanged reloads a loaded board after an out-of-band store write.
// Users without a loaded board are skipped; their board seeds fresh on next use.
func (r *Registry) TasksChanged(ctx context.Context, userID string) {
	r.mu.Lock()
	e, ok := r.boards[userID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := e.board.Reload(ctx); err != nil {
		log.Printf("[TaskSync] Failed to reload board for user %s: %v", userID, err)
	}
}

func (r *Registry) touchLocked(e *registryEntry) {
	r.tick++
	e.lastUsed = r.tick
}

// shrinkLocked drops least recently used boards until the registry fits its limit
func (r *Registry) shrinkLocked() []string {
	var evicted []string
	for len(r.boards) > r.limit {
		oldest, oldestTick := "", uint64(0)
		for userID, e := range r.boards {
			if oldest == "" || e.lastUsed < oldestTick {
				oldest, oldestTick = userID, e.lastUsed
			}
		}
		delete(r.boards, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (r *Registry) notifyEvicted(hooks []EvictFunc, userIDs []string) {
	for _, userID := range userIDs {
		log.Printf("[TaskSync] Evicted board for user %s", userID)
		for _, fn := range hooks {
			fn(userID)
		}
	}
}
