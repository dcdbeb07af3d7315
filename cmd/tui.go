// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/umvh/pkg/calibration"
	"github.com/Thermoquad/umvh/pkg/poller"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Monitor TUI model
type monitorModel struct {
	pm       *pollManager
	layout   registers.Layout
	connInfo string

	readings      table.Model
	last          *poller.Snapshot
	lastKind      poller.Kind
	running       bool
	snapshots     int
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type monitorEventMsg poller.Event
type monitorTickMsg time.Time

func newMonitorModel(pm *pollManager, layout registers.Layout, connInfo string) monitorModel {
	columns := []table.Column{
		{Title: "Port", Width: 4},
		{Title: "Raw", Width: 6},
		{Title: "Hex", Width: 6},
		{Title: "Sensor", Width: 6},
		{Title: "Mode", Width: 7},
		{Title: "Value", Width: 10},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(layout.Ports()+1),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Cell
	t.SetStyles(styles)

	return monitorModel{
		pm:            pm,
		layout:        layout,
		connInfo:      connInfo,
		readings:      t,
		running:       true,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.running {
				m.running = true
				m.addLogEntry("Polling restarted", false)
				m.pm.start()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case monitorEventMsg:
		ev := poller.Event(msg)
		m.lastKind = ev.Kind
		switch ev.Kind {
		case poller.KindSnapshot:
			m.snapshots++
			m.last = ev.Snapshot
			m.readings.SetRows(snapshotRows(ev.Snapshot))
		case poller.KindConnectionLost:
			m.running = false
			m.addLogEntry(fmt.Sprintf("CONNECTION LOST: %v (press 'r' to retry)", ev.Err), true)
		case poller.KindFailed:
			m.running = false
			m.addLogEntry(fmt.Sprintf("LINK FAILURE: %v (press 'r' to retry)", ev.Err), true)
		case poller.KindStopped:
			m.running = false
			m.addLogEntry("Polling stopped", false)
		}
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// snapshotRows builds one table row per operator port
func snapshotRows(s *poller.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(s.Sensors))
	for port := 1; port <= len(s.Sensors); port++ {
		dev := calibration.SwapPort(port)
		if dev < 1 || dev > len(s.Sensors) {
			continue
		}
		raw := s.Sensors[dev-1]
		var b calibration.Binding
		if dev <= len(s.Bindings) {
			b = calibration.DecodeBinding(s.Bindings[dev-1])
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", port),
			fmt.Sprintf("%d", raw),
			fmt.Sprintf("%04X", raw),
			fmt.Sprintf("0x%02X", b.Sensor),
			b.Mode.String(),
			calibration.FormatValue(raw, b.Sensor),
		})
	}
	return rows
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("UMVH - SENSOR MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Map: %s | Press 'q' to quit", m.connInfo, m.layout.Name)))
	s.WriteString("\n\n")

	// Status
	switch {
	case m.running && m.last == nil:
		s.WriteString(warningStyle.Render("⏳ Waiting for first snapshot..."))
	case m.running:
		s.WriteString(valueStyle.Render("✓ Polling"))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (cycle %d, %d snapshots)", m.last.Cycle, m.snapshots)))
	default:
		s.WriteString(errorStyle.Render("✗ " + m.lastKind.String()))
	}
	s.WriteString("\n\n")

	// Exchange statistics
	c := m.pm.stats.Counters()
	var okPercent float64
	if c.Total > 0 {
		okPercent = float64(c.OK) * 100.0 / float64(c.Total)
	}
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Exchanges:"), valueStyle.Render(fmt.Sprintf("%d", c.Total)),
		labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.OK, okPercent)),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", c.Errors())),
	))
	if c.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
			headerStyle.Render("timeouts"), c.Timeouts,
			headerStyle.Render("framing"), c.Framing,
			headerStyle.Render("exceptions"), c.Exceptions,
			headerStyle.Render("link"), c.LinkErrors,
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f /s", c.Rate)),
		labelStyle.Render("Error Rate:"), func() string {
			if c.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f /s", c.ErrorRate))
			}
			return valueStyle.Render(fmt.Sprintf("%.1f /s", c.ErrorRate))
		}(),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Readings
	if m.last != nil {
		s.WriteString(labelStyle.Render("Readings:"))
		s.WriteString(headerStyle.Render(" " + m.last.Time.Format("15:04:05.000")))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.readings.View()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.layout.Ports() - 20
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			style, mark := warningStyle, "ℹ "
			if entry.isError {
				style, mark = errorStyle, "✗ "
			}
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), style.Render(mark+entry.message)))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
