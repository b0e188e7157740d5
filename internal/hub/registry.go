// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package hub

import "github.com/toeirei/gatehouse/internal/model"

// snapshot is one immutable generation of the identity registry: the
// entity list, the key→entity index derived from it, and the key pool.
// The index's key set always equals the pool. A snapshot is never
// mutated after construction; reload publishes a brand-new one.
type snapshot struct {
	entities []model.Entity
	byKey    map[string]model.Entity
	pool     map[string]struct{}
}

func newSnapshot(kc *model.Keychain) *snapshot {
	byKey := make(map[string]model.Entity, len(kc.Entities))
	for _, e := range kc.Entities {
		byKey[e.Key] = e
	}
	return &snapshot{entities: kc.Entities, byKey: byKey, pool: kc.KeyPool}
}

func (s *snapshot) lookup(key string) (model.Entity, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// Lookup resolves a public key (SSH wire marshal) against the current
// snapshot. Pure read, no session state is touched.
func (h *Hub) Lookup(key string) (model.Entity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap.lookup(key)
}

// Authenticate is the gate for a not-yet-open connection offering a
// public key. On success the session id is bound to the resolved entity
// and recorded in the reverse index; on a miss nothing is recorded.
func (h *Hub) Authenticate(id uint64, key string) (model.Entity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entity, ok := h.snap.lookup(key)
	if !ok {
		return model.Entity{}, false
	}
	h.bindings[id] = entity
	h.reverse[entity.Key] = append(h.reverse[entity.Key], id)
	return entity, true
}

// KeyPool returns a copy of the current snapshot's key pool.
func (h *Hub) KeyPool() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	pool := make(map[string]struct{}, len(h.snap.pool))
	for k := range h.snap.pool {
		pool[k] = struct{}{}
	}
	return pool
}
