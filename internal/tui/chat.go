// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tui renders one session's view of the shared chat: the
// recent history on top, a bordered input area at the bottom. Every
// connected terminal runs its own bubbletea program over its SSH
// channel; the hub pushes shared-state updates in as messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/toeirei/gatehouse/internal/hub"
	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/model"
)

// Hub is the subset of hub operations the chat view drives.
type Hub interface {
	Submit(id uint64, text string)
	Reload(ctx context.Context, invokerID uint64) error
}

// historyMsg replaces the rendered history window.
type historyMsg []string

// statusMsg shows a transient line under the input area.
type statusMsg string

// inputRows is the height of the text entry area, borders excluded.
const inputRows = 2

var (
	historyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	inputStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true)
)

// chatModel is the per-session view state.
type chatModel struct {
	id     uint64
	entity model.Entity
	hub    Hub

	history []string
	status  string
	width   int
	height  int
	input   textarea.Model
}

func newChatModel(id uint64, entity model.Entity, h Hub) chatModel {
	input := textarea.New()
	input.ShowLineNumbers = false
	input.Prompt = ""
	input.SetHeight(inputRows)
	input.Focus()

	return chatModel{
		id:     id,
		entity: entity,
		hub:    h,
		status: i18n.T("tui.help"),
		input:  input,
	}
}

func (m chatModel) Init() tea.Cmd { return textarea.Blink }

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// The interrupt gesture ends the session.
			return m, tea.Quit
		case "alt+enter":
			text := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			return m, m.submitCmd(text)
		case "ctrl+r":
			return m, m.reloadCmd()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width - 2)
		return m, nil

	case historyMsg:
		m.history = msg
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitCmd hands the buffered text to the hub off the update loop.
func (m chatModel) submitCmd(text string) tea.Cmd {
	id, h := m.id, m.hub
	return func() tea.Msg {
		h.Submit(id, text)
		return nil
	}
}

// reloadCmd asks the hub for a registry reload and reports the outcome
// to this session only. The hub decides eligibility; a standard-tier
// session just sees the denial in its status line.
func (m chatModel) reloadCmd() tea.Cmd {
	id, h := m.id, m.hub
	return func() tea.Msg {
		err := h.Reload(context.Background(), id)
		switch {
		case err == nil:
			return statusMsg(i18n.T("reload.done"))
		case errors.Is(err, hub.ErrNotElevated):
			return statusMsg(i18n.T("reload.denied"))
		default:
			return statusMsg(i18n.T("reload.failed", err))
		}
	}
}

// title renders the input block caption, e.g. "[alice]" or "[bob]-[elevated]".
func (m chatModel) title() string {
	if m.entity.Role == model.RoleElevated {
		return fmt.Sprintf("[%s]-[elevated]", m.entity.Name)
	}
	return fmt.Sprintf("[%s]", m.entity.Name)
}

func (m chatModel) View() string {
	if m.width == 0 || m.height == 0 {
		// No pty yet; nothing sensible to draw.
		return ""
	}

	// The input block is the bordered textarea plus its caption and the
	// status line; history fills the rest of the viewport.
	input := inputStyle.Width(m.width - 2).Render(m.input.View())
	bottom := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title()),
		input,
		statusStyle.Render(m.status),
	)

	historyHeight := m.height - lipgloss.Height(bottom)
	if historyHeight < 0 {
		historyHeight = 0
	}
	history := historyStyle.
		Width(m.width).
		Height(historyHeight).
		Render(strings.Join(m.history, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, history, bottom)
}
