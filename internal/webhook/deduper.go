package webhook

import (
	"sync"
	"time"
)

// messageDeduper remembers gateway message ids so redelivered webhooks run once
type messageDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newMessageDeduper(ttl time.Duration) *messageDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &messageDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// markIfNew returns true if the id has not been seen recently.
// When it returns true, the id is recorded with an expiry timestamp.
func (d *messageDeduper) markIfNew(id string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, key)
		}
	}

	if expiry, ok := d.entries[id]; ok && now.Before(expiry) {
		return false
	}

	d.entries[id] = now.Add(d.ttl)
	return true
}

// forget drops an id so a redelivery is processed again
func (d *messageDeduper) forget(id string) {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
}
