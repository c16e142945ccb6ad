package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/events"
)

// StatusPaneModel lists the backends and shows the connection status.
type StatusPaneModel struct {
	kinds    []backend.Kind
	cursor   int
	selected backend.Kind
	status   backend.Status
	lastErr  string
	width    int
	height   int
	focused  bool
}

type (
	selectMsg     struct{ kind backend.Kind }
	connectMsg    struct{}
	disconnectMsg struct{}
)

// NewStatusPaneModel creates the pane with the current selection.
func NewStatusPaneModel(selected backend.Kind, status backend.Status, lastErr string) StatusPaneModel {
	m := StatusPaneModel{
		kinds:    backend.Kinds(),
		selected: selected,
		status:   status,
		lastErr:  lastErr,
	}
	for i, k := range m.kinds {
		if k == selected {
			m.cursor = i
		}
	}
	return m
}

// Update handles messages for the status pane.
func (m StatusPaneModel) Update(msg tea.Msg) (StatusPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.cursor < len(m.kinds)-1 {
				m.cursor++
			}
		case KeyK, KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
		case KeyEnter:
			kind := m.kinds[m.cursor]
			return m, func() tea.Msg { return selectMsg{kind: kind} }
		case KeyConnect:
			return m, func() tea.Msg { return connectMsg{} }
		case KeyDisconnect:
			return m, func() tea.Msg { return disconnectMsg{} }
		}

	case events.StatusChangedEvent:
		m.status = msg.To
		switch msg.To {
		case backend.StatusError:
			m.lastErr = msg.Err
		case backend.StatusConnecting, backend.StatusConnected:
			m.lastErr = ""
		}

	case events.BackendSelectedEvent:
		m.selected = msg.Backend
	}

	return m, nil
}

// View renders the status pane.
func (m StatusPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Backends")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	for i, k := range m.kinds {
		desc, _ := backend.Describe(k)
		marker := "  "
		if k == m.selected {
			marker = StatusStyle(m.status).Render(m.status.Icon()) + " "
		}
		line := marker + desc.DisplayName
		if i == m.cursor && m.focused {
			line = StyleCursor.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	desc, _ := backend.Describe(m.selected)
	fmt.Fprintf(&b, "Backend: %s\n", desc.DisplayName)
	fmt.Fprintf(&b, "Status:  %s\n", StatusStyle(m.status).Render(m.status.DisplayText()))
	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(10, m.width-4)).Render(StyleNotice.Render(m.lastErr)))
		b.WriteString("\n")
	}

	if d, ok := backend.Describe(m.kinds[m.cursor]); ok && m.focused {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(10, m.width-4)).Render(StyleTimestamp.Render(d.Description)))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *StatusPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StatusPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Cursor returns the kind under the cursor.
func (m StatusPaneModel) Cursor() backend.Kind {
	return m.kinds[m.cursor]
}
