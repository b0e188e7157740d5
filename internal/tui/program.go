// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/toeirei/gatehouse/internal/model"
)

// NewProgram builds the bubbletea program for one session. Input and
// output are the session's SSH channel; there is no local terminal.
func NewProgram(id uint64, entity model.Entity, h Hub, in io.Reader, out io.Writer) *tea.Program {
	return tea.NewProgram(
		newChatModel(id, entity, h),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
}

// Renderer adapts a running program to the hub's Renderer contract:
// shared-state changes arrive as messages on the program's queue.
type Renderer struct {
	Program *tea.Program
}

// Redraw pushes a fresh history window into the program.
func (r Renderer) Redraw(history []string) {
	r.Program.Send(historyMsg(history))
}

// Resize pushes the new viewport size into the program. Window sizes
// arrive out-of-band as SSH requests, so the server injects them here
// instead of bubbletea detecting them itself.
func (r Renderer) Resize(width, height int) {
	r.Program.Send(tea.WindowSizeMsg{Width: width, Height: height})
}
