package callbacks

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
)

// ID identifies one pending callback. IDs are unique for the life of the
// process and never reused, even across contexts.
type ID = protocol.CallbackID

var lastID atomic.Int64

func init() { lastID.Store(-1) }

// NextID returns the next process-wide callback id. The first id is 0.
func NextID() ID {
	return ID(lastID.Add(1))
}

// Invoker runs a stored callback with its receiver and the reply arguments.
type Invoker[H any] func(fn, this H, args []protocol.Value) error

// Entry is one pending callback.
type Entry[H any] struct {
	ID   ID
	Fn   H
	This H
}

// Table stores callbacks waiting for a reply from the host. Each entry is
// removed exactly once: by its reply or by Purge.
type Table[H any] struct {
	mu      sync.Mutex
	entries map[ID]Entry[H]

	invoke  Invoker[H]
	onError func(id ID, err error)
}

// NewTable creates an empty table. onError receives failures raised by
// invoked callbacks; it may be nil.
func NewTable[H any](invoke Invoker[H], onError func(id ID, err error)) *Table[H] {
	return &Table[H]{
		entries: make(map[ID]Entry[H]),
		invoke:  invoke,
		onError: onError,
	}
}

// Allocate stores fn and its receiver and returns the new id.
func (t *Table[H]) Allocate(fn, this H) ID {
	id := NextID()

	t.mu.Lock()
	t.entries[id] = Entry[H]{ID: id, Fn: fn, This: this}
	t.mu.Unlock()
	return id
}

// InvokeAndRemove removes the entry for id and runs it with args. It returns
// false when no such entry exists. Errors from the callback go to the
// table's error hook and do not change the result.
func (t *Table[H]) InvokeAndRemove(id ID, args []protocol.Value) bool {
	t.mu.Lock()
	entry, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()

	if !ok {
		return false
	}
	if err := t.invoke(entry.Fn, entry.This, args); err != nil && t.onError != nil {
		t.onError(id, err)
	}
	return true
}

// Purge drops every entry without invoking it and returns how many were dropped.
func (t *Table[H]) Purge() int {
	t.mu.Lock()
	n := len(t.entries)
	t.entries = make(map[ID]Entry[H])
	t.mu.Unlock()
	return n
}

// Len returns the number of pending callbacks.
func (t *Table[H]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending returns the ids still waiting for a reply, lowest first.
func (t *Table[H]) Pending() []ID {
	t.mu.Lock()
	ids := make([]ID, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
