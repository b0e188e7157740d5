// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/logging"
	"github.com/toeirei/gatehouse/internal/model"
)

// ErrNotElevated signals that a standard-tier session asked for a
// reload. The registry is untouched; the invoker gets a local status
// message and nothing else happens.
var ErrNotElevated = errors.New("reload requires an elevated session")

// RevocationError reports the sessions a reload could not force off.
// When it is returned the new snapshot was NOT committed; sessions that
// were already disconnected before the failure stay disconnected.
type RevocationError struct {
	IDs []uint64
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("reload aborted: could not revoke sessions %v", e.IDs)
}

// Reload re-reads the backing store and swaps in the new registry
// snapshot, revoking every session whose key vanished. The whole
// transaction runs under the hub lock: no session observes a mix of old
// and new state, and no structural mutation interleaves with the
// revocation loop. The swap is all-or-nothing — either every stray
// session was revoked and the snapshot, key index and key pool are
// replaced as one unit, or the old snapshot stays authoritative.
func (h *Hub) Reload(ctx context.Context, invokerID uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	invoker, ok := h.bindings[invokerID]
	if !ok || invoker.Role != model.RoleElevated {
		return ErrNotElevated
	}

	kc, err := h.loader.Load(ctx)
	if err != nil {
		logging.Errorf("reload: load failed, keeping current registry: %v", err)
		return err
	}
	next := newSnapshot(kc)

	// Collect the victims against the read-only old state before touching
	// anything: ids authenticated under keys absent from the new pool.
	// The dedupe set also guards against an id listed twice.
	victims := make(map[uint64]struct{})
	for key := range h.snap.pool {
		if _, kept := next.pool[key]; kept {
			continue
		}
		for _, id := range h.reverse[key] {
			victims[id] = struct{}{}
		}
	}

	order := make([]uint64, 0, len(victims))
	for id := range victims {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var failed []uint64
	for _, id := range order {
		if s, open := h.sessions[id]; open {
			if err := s.transport.Disconnect(); err != nil {
				logging.Errorf("reload: failed to disconnect session %d: %v", id, err)
				failed = append(failed, id)
				continue
			}
		}
		h.closeLocked(id)
	}
	if len(failed) > 0 {
		// No commit. Already-revoked sessions stay revoked; the ones we
		// could not reach keep their (old) valid bindings.
		h.redrawLocked()
		return &RevocationError{IDs: failed}
	}

	h.snap = next
	h.redrawLocked()
	logging.Infof("%s", i18n.T("reload.synced", len(next.pool), len(order)))
	return nil
}
