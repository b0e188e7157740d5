// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package hub

// historyWindow is how many of the most recent history lines any
// session ever sees rendered.
const historyWindow = 20

// appendLocked adds one line to the shared history. Callers hold h.mu.
func (h *Hub) appendLocked(line string) {
	h.history = append(h.history, line)
}

// windowLocked returns the most recent historyWindow lines. The returned
// slice aliases h.history, which is append-only, so it stays valid after
// the lock is released.
func (h *Hub) windowLocked() []string {
	if len(h.history) <= historyWindow {
		return h.history[:len(h.history):len(h.history)]
	}
	return h.history[len(h.history)-historyWindow:]
}

// redrawLocked snapshots the history window and the live renderers under
// the lock, then fans the repaint out on a detached goroutine. Each
// repaint is a full idempotent re-render of latest state, so overlapping
// fan-outs race harmlessly and carry no cross-session ordering.
func (h *Hub) redrawLocked() {
	lines := h.windowLocked()
	renderers := make([]Renderer, 0, len(h.sessions))
	for _, s := range h.sessions {
		renderers = append(renderers, s.renderer)
	}
	go func() {
		for _, r := range renderers {
			r.Redraw(lines)
		}
	}()
}

// RedrawAll repaints every live session with the latest shared state.
func (h *Hub) RedrawAll() {
	h.mu.Lock()
	h.redrawLocked()
	h.mu.Unlock()
}

// History returns a copy of the full chat history.
func (h *Hub) History() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.history))
	copy(out, h.history)
	return out
}
