// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/umvh/pkg/firmware"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// flashModel follows one transfer until its terminal event
type flashModel struct {
	handle   *firmware.Handle
	file     string
	size     int
	chunks   int
	connInfo string

	started   time.Time
	last      firmware.Event
	messages  []string
	bar       progress.Model
	cancelled bool
	done      bool
}

type flashEventMsg firmware.Event

// flashClosedMsg is sent if the stream ends without a terminal event
type flashClosedMsg struct{}

func newFlashModel(h *firmware.Handle, file string, size, chunks int, connInfo string) flashModel {
	return flashModel{
		handle:   h,
		file:     file,
		size:     size,
		chunks:   chunks,
		connInfo: connInfo,
		started:  time.Now(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
	}
}

// waitForEvent reads the next record of the transfer stream
func waitForEvent(events <-chan firmware.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return flashClosedMsg{}
		}
		return flashEventMsg(ev)
	}
}

func (m flashModel) Init() tea.Cmd {
	return waitForEvent(m.handle.Events())
}

func (m flashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// The transfer stops at the next chunk boundary and still
			// emits its terminal event
			if !m.cancelled {
				m.cancelled = true
				m.handle.Cancel()
			}
		}

	case tea.WindowSizeMsg:
		w := msg.Width - 8
		if w > 80 {
			w = 80
		}
		if w > 10 {
			m.bar.Width = w
		}

	case flashEventMsg:
		ev := firmware.Event(msg)
		m.last = ev
		if ev.Message != "" {
			m.messages = append(m.messages, ev.Message)
		}
		if ev.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.handle.Events())

	case flashClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m flashModel) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	var s strings.Builder
	s.WriteString(titleStyle.Render("UMVH - FIRMWARE UPDATE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s (%d bytes, %d chunks) | Press 'q' to cancel",
		m.connInfo, m.file, m.size, m.chunks)))
	s.WriteString("\n\n")

	for _, msg := range m.messages {
		s.WriteString(headerStyle.Render("• " + msg))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	s.WriteString(m.bar.ViewAs(float64(m.last.Percent) / 100))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("%s %s   %s %d/%d   %s %s\n",
		labelStyle.Render("State:"), m.last.State,
		labelStyle.Render("Chunk:"), m.last.Chunk, m.chunks,
		labelStyle.Render("Elapsed:"), time.Since(m.started).Round(time.Second)))

	switch {
	case m.last.State == firmware.StateCompleted:
		s.WriteString("\n" + okStyle.Render("✓ Update complete") + "\n")
	case m.last.State == firmware.StateFailed:
		s.WriteString("\n" + errorStyle.Render(fmt.Sprintf("✗ Update failed: %v", m.last.Err)) + "\n")
	case m.cancelled:
		s.WriteString("\n" + errorStyle.Render("Cancelling...") + "\n")
	}
	return s.String()
}
