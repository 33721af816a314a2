package unread

import "sync"

// Registry lets any part of the process ask every live counter of a user to
// recompute, e.g. right after that user marked a conversation as read.
// Registrations are keyed by user id and a user may have any number of them.
type Registry struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string]map[int]func())}
}

// Register adds fn under userID. The returned function removes it and is
// safe to call more than once.
func (r *Registry) Register(userID string, fn func()) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	if r.listeners[userID] == nil {
		r.listeners[userID] = make(map[int]func())
	}
	r.listeners[userID][id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners[userID], id)
			if len(r.listeners[userID]) == 0 {
				delete(r.listeners, userID)
			}
		})
	}
}

// Refresh invokes every listener registered for userID and returns how many
// there were. Listeners run on the caller's goroutine, outside the lock.
func (r *Registry) Refresh(userID string) int {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners[userID]))
	for _, fn := range r.listeners[userID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Len returns the number of listeners registered for userID.
func (r *Registry) Len(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[userID])
}
