package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// State is the registration state of one sentence id.
type State int

const (
	StateAbsent State = iota
	StateMuted
	StateActive
)

func (s State) String() string {
	switch s {
	case StateMuted:
		return "muted"
	case StateActive:
		return "active"
	default:
		return "absent"
	}
}

// Entry is one registered id and its state.
type Entry struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Registry maps sentence ids to handlers. A nil handler marks the id muted,
// which is distinct from never registering it.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Handler)}
}

// ValidateID rejects empty ids and ids carrying the '$' start delimiter.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if strings.Contains(id, "$") {
		return fmt.Errorf("%w: %q contains '$'", ErrInvalidID, id)
	}
	return nil
}

// Register binds h to id, overwriting any prior state. A nil h mutes id.
func (r *Registry) Register(id string, h Handler) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if isNilHandler(h) {
		h = nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = h
	return nil
}

// Unregister returns id to the absent state.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// Lookup reports the handler and state for id.
func (r *Registry) Lookup(id string) (Handler, State) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.items[id]
	switch {
	case !ok:
		return nil, StateAbsent
	case h == nil:
		return nil, StateMuted
	default:
		return h, StateActive
	}
}

// IDs returns every registered id, muted ones included, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns id/state pairs sorted by id.
func (r *Registry) Entries() []Entry {
	ids := r.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		_, state := r.Lookup(id)
		out = append(out, Entry{ID: id, State: state.String()})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	if fn, ok := h.(HandlerFunc); ok && fn == nil {
		return true
	}
	return false
}
