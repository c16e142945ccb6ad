package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/events"
)

// ChatPaneModel shows the conversation and the message input.
type ChatPaneModel struct {
	messages  []backend.ChatMessage
	seen      map[string]bool
	viewport  viewport.Model
	input     textinput.Model
	pending   bool
	notice    string
	width     int
	height    int
	focused   bool
	updateTag int // for debouncing
}

// submitMsg asks the root model to send text.
type submitMsg struct {
	text string
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// NewChatPaneModel creates a chat pane showing history.
func NewChatPaneModel(history []backend.ChatMessage) ChatPaneModel {
	in := textinput.New()
	in.Placeholder = "Say something to Krab..."
	in.Prompt = "> "
	in.CharLimit = 4000

	m := ChatPaneModel{
		seen:     make(map[string]bool),
		viewport: viewport.New(0, 0),
		input:    in,
	}
	m.SetHistory(history)
	return m
}

// Update handles messages for the chat pane.
func (m ChatPaneModel) Update(msg tea.Msg) (ChatPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.pending {
				break
			}
			m.input.SetValue("")
			m.notice = ""
			return m, func() tea.Msg { return submitMsg{text: text} }
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
		default:
			m.input, cmd = m.input.Update(msg)
		}

	case events.MessageAppendedEvent:
		if m.seen[msg.Message.ID] {
			break
		}
		m.seen[msg.Message.ID] = true
		m.messages = append(m.messages, msg.Message)
		m.updateTag++
		tag := m.updateTag
		return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
			return tickMsg{tag: tag}
		})

	case events.SendFailedEvent:
		m.SetNotice(msg.Err.Error())

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}

	default:
		m.input, cmd = m.input.Update(msg)
	}

	return m, cmd
}

// View renders the chat pane.
func (m ChatPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	input := m.input.View()
	if m.pending {
		input = StyleTimestamp.Render("Krab is thinking...")
	}

	parts := []string{m.viewport.View()}
	if m.notice != "" {
		parts = append(parts, StyleNotice.Render("✗ "+m.notice))
	}
	parts = append(parts, input)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m ChatPaneModel) render() string {
	if len(m.messages) == 0 {
		return StyleStatusDisconnected.Render("No messages yet. Pick a backend and say hi!")
	}

	width := m.viewport.Width
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		name := StyleKrabName.Render("Krab")
		if msg.FromUser {
			name = StyleUserName.Render("You")
		}
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(StyleTimestamp.Render(msg.Timestamp.Local().Format("15:04")))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}

// updateViewportContent re-renders the log and scrolls to the newest message.
func (m *ChatPaneModel) updateViewportContent() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m *ChatPaneModel) resizeViewport() {
	viewportWidth := m.width - 4
	viewportHeight := m.height - 4 // borders and the input line
	if m.notice != "" {
		viewportHeight--
	}

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
	m.input.Width = viewportWidth - 3
	m.updateViewportContent()
}

// SetHistory replaces the displayed log.
func (m *ChatPaneModel) SetHistory(history []backend.ChatMessage) {
	m.messages = append([]backend.ChatMessage(nil), history...)
	m.seen = make(map[string]bool, len(history))
	for _, msg := range history {
		m.seen[msg.ID] = true
	}
	m.updateViewportContent()
}

// SetNotice shows text under the log until the next submit.
func (m *ChatPaneModel) SetNotice(text string) {
	m.notice = text
	m.resizeViewport()
}

// SetPending marks a send as in flight. Input is ignored meanwhile.
func (m *ChatPaneModel) SetPending(pending bool) {
	m.pending = pending
}

// SetSize updates the pane dimensions.
func (m *ChatPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *ChatPaneModel) SetFocused(focused bool) {
	m.focused = focused
	if focused {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// Messages returns the displayed log.
func (m ChatPaneModel) Messages() []backend.ChatMessage {
	return m.messages
}
