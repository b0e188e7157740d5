// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package hub is the heart of Gatehouse: the identity registry, the
// table of live sessions, the reverse key→sessions index and the shared
// chat history. One mutex guards all of it. Sessions talk to the hub
// through method calls; the hub talks back through the Transport and
// Renderer handles each session registered when it opened. Fan-out
// redraws run detached so no session ever blocks another.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/toeirei/gatehouse/internal/model"
	"github.com/toeirei/gatehouse/internal/store"
)

// Transport is the hub's handle to one session's underlying connection.
// Disconnect force-closes it; the transport's own teardown path is then
// expected to call Hub.Close for the session.
type Transport interface {
	Disconnect() error
}

// Renderer is the hub's handle to one session's drawing surface. Both
// calls must be safe from any goroutine and must not block the caller
// indefinitely.
type Renderer interface {
	// Redraw replaces the rendered history window. The slice is shared
	// across sessions and must not be mutated.
	Redraw(history []string)
	// Resize updates the session's viewport.
	Resize(width, height int)
}

// session is one live connection's record: the entity it authenticated
// as, and the handles the hub uses to reach it.
type session struct {
	id        uint64
	entity    model.Entity
	transport Transport
	renderer  Renderer
	width     int
	height    int
}

// Hub owns all shared mutable state. The zero value is not usable; use New.
type Hub struct {
	loader store.Loader

	nextID atomic.Uint64

	mu sync.Mutex
	// snap is the current registry snapshot, replaced as a unit on reload.
	snap *snapshot
	// bindings maps a session id to its entity, set at authentication
	// time, before the session channel opens.
	bindings map[uint64]model.Entity
	// reverse maps a key to the ids authenticated under it. Every listed
	// id has a live binding; Close prunes it no matter how the session ended.
	reverse map[string][]uint64
	// sessions holds the open sessions by id.
	sessions map[uint64]*session
	// history is the append-only chat log.
	history []string
}

// New builds a hub around the given loader and an already loaded initial
// keychain (startup load failures are the caller's to handle).
func New(loader store.Loader, initial *model.Keychain) *Hub {
	return &Hub{
		loader:   loader,
		snap:     newSnapshot(initial),
		bindings: make(map[uint64]model.Entity),
		reverse:  make(map[string][]uint64),
		sessions: make(map[uint64]*session),
	}
}

// NextID hands out a fresh session id.
func (h *Hub) NextID() uint64 {
	return h.nextID.Add(1)
}

// SessionCount reports the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
