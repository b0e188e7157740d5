// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package hub

import (
	"fmt"

	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/logging"
)

// Open turns an authenticated id into a live session. The viewport
// starts zero-sized; the real size arrives with the first Resize. The
// join announcement lands in the shared history and every session is
// redrawn.
func (h *Hub) Open(id uint64, transport Transport, renderer Renderer) error {
	h.mu.Lock()
	entity, ok := h.bindings[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("session %d opened without authentication", id)
	}
	h.sessions[id] = &session{
		id:        id,
		entity:    entity,
		transport: transport,
		renderer:  renderer,
	}
	h.appendLocked(i18n.T("chat.joined", entity.Name, entity.Role))
	h.redrawLocked()
	h.mu.Unlock()

	logging.Debugf("session %d opened for %s", id, entity.Name)
	return nil
}

// Resize updates one session's viewport and repaints. Unknown ids are a
// no-op; resize events can race with teardown.
func (h *Hub) Resize(id uint64, width, height int) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	s.width, s.height = width, height
	renderer := s.renderer
	h.redrawLocked()
	h.mu.Unlock()

	renderer.Resize(width, height)
}

// Close tears down whatever state the id still holds: the session
// record, the id→entity binding, and the id's reverse-index entry under
// the key it authenticated with. Safe to call from any teardown path and
// idempotent; the second call finds nothing to do. It is also the
// cleanup for connections that authenticated but never opened a channel.
func (h *Hub) Close(id uint64) {
	h.mu.Lock()
	if h.closeLocked(id) {
		h.redrawLocked()
	}
	h.mu.Unlock()
}

// closeLocked removes all state held under id and reports whether any
// was found. Callers hold h.mu and repaint afterwards if needed.
func (h *Hub) closeLocked(id uint64) bool {
	entity, bound := h.bindings[id]
	if !bound {
		return false
	}
	delete(h.bindings, id)
	h.pruneReverseLocked(entity.Key, id)

	if _, open := h.sessions[id]; open {
		delete(h.sessions, id)
		h.appendLocked(i18n.T("chat.left", entity.Name))
	}
	logging.Debugf("session %d closed (%s)", id, entity.Name)
	return true
}

// Submit appends a chat line attributed to the session's currently
// bound entity and repaints everyone. The submitting session's input
// buffer is cleared by its own renderer as part of the submit gesture.
func (h *Hub) Submit(id uint64, text string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.appendLocked(fmt.Sprintf("[%s]: %s", s.entity.Name, text))
	h.redrawLocked()
	h.mu.Unlock()
}

// pruneReverseLocked removes one id from the reverse index entry of key.
func (h *Hub) pruneReverseLocked(key string, id uint64) {
	ids := h.reverse[key]
	kept := ids[:0]
	for _, other := range ids {
		if other != id {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(h.reverse, key)
		return
	}
	h.reverse[key] = kept
}
