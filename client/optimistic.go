package client

import (
	"sync"

	"github.com/google/uuid"
)

// Update is one optimistic local edit awaiting server confirmation. Apply
// runs synchronously on Add so the UI reflects the edit before the network
// round trip. Rollback must undo exactly what Apply did.
type Update struct {
	ID        string
	Apply     func()
	Rollback  func()
	OnSuccess func()
	OnError   func(error)
}

// Queue tracks optimistic updates between Apply and the server's ack.
// Confirm and Rollback on unknown ids are no-ops, not errors: an entry may
// already have been drained by RollbackAll on a disconnect.
type Queue struct {
	mu      sync.Mutex
	order   []string
	entries map[string]Update
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{entries: make(map[string]Update)}
}

// Add stores the update, invokes its Apply once, and returns its id. An
// empty ID is filled with a fresh UUID.
func (q *Queue) Add(u Update) string {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	q.mu.Lock()
	q.order = append(q.order, u.ID)
	q.entries[u.ID] = u
	q.mu.Unlock()
	if u.Apply != nil {
		u.Apply()
	}
	return u.ID
}

// Confirm resolves a pending update, invoking its OnSuccess.
func (q *Queue) Confirm(id string) {
	u, ok := q.take(id)
	if !ok {
		return
	}
	if u.OnSuccess != nil {
		u.OnSuccess()
	}
}

// Rollback undoes a pending update, invoking its Rollback then OnError.
func (q *Queue) Rollback(id string, err error) {
	u, ok := q.take(id)
	if !ok {
		return
	}
	if u.Rollback != nil {
		u.Rollback()
	}
	if u.OnError != nil {
		u.OnError(err)
	}
}

// RollbackAll drains every pending update, invoking each Rollback newest
// first so undos unwind in reverse application order. Used on disconnect
// before a full resync.
func (q *Queue) RollbackAll() {
	q.mu.Lock()
	drained := make([]Update, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		if u, ok := q.entries[q.order[i]]; ok {
			drained = append(drained, u)
		}
	}
	q.order = nil
	q.entries = make(map[string]Update)
	q.mu.Unlock()

	for _, u := range drained {
		if u.Rollback != nil {
			u.Rollback()
		}
	}
}

// HasPending reports whether any update awaits resolution.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) > 0
}

func (q *Queue) take(id string) (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	u, ok := q.entries[id]
	if !ok {
		return Update{}, false
	}
	delete(q.entries, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return u, true
}
