package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
	"github.com/krabwidget/krab/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneChat PaneID = iota
	PaneBackends
)

// Controller is the part of the dispatcher the TUI drives.
type Controller interface {
	Status() backend.Status
	Kind() backend.Kind
	LastError() string
	Messages() []backend.ChatMessage
	Configs() config.Set
	SelectBackend(ctx context.Context, kind backend.Kind, autoConnect bool) error
	Connect(ctx context.Context) error
	Disconnect()
	SendMessage(ctx context.Context, text string) (string, error)
	UpdateConfig(ctx context.Context, k backend.Kind, cfg backend.Config) error
	SetAutoConnect(ctx context.Context, enabled bool) error
	ClearMessages(ctx context.Context) error
}

// sendDoneMsg reports the end of a send.
type sendDoneMsg struct {
	err error
}

// actionDoneMsg reports the end of a select, connect or settings change.
type actionDoneMsg struct {
	err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	ctx          context.Context
	ctrl         Controller
	chatPane     ChatPaneModel
	statusPane   StatusPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	notice       string
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model.
// It subscribes to every topic of the event bus.
func New(ctx context.Context, ctrl Controller, bus *events.EventBus) Model {
	m := Model{
		ctx:          ctx,
		ctrl:         ctrl,
		chatPane:     NewChatPaneModel(ctrl.Messages()),
		statusPane:   NewStatusPaneModel(ctrl.Kind(), ctrl.Status(), ctrl.LastError()),
		settingsPane: NewSettingsPaneModel(),
		focusedPane:  PaneChat,
		eventSub:     bus.Subscribe(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}

		// Settings overlay is modal
		if m.settingsPane.IsVisible() {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit:
			if m.focusedPane == PaneBackends {
				m.quitting = true
				return m, tea.Quit
			}
			cmds = append(cmds, m.routeKey(msg))

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeySettings:
			m.notice = ""
			cmds = append(cmds, m.settingsPane.Open(m.statusPane.Cursor(), m.ctrl.Configs()))

		case KeyClear:
			if err := m.ctrl.ClearMessages(m.ctx); err != nil {
				m.notice = err.Error()
			}
			m.chatPane.SetHistory(nil)

		default:
			cmds = append(cmds, m.routeKey(msg))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case submitMsg:
		m.chatPane.SetPending(true)
		cmds = append(cmds, m.send(msg.text))

	case sendDoneMsg:
		m.chatPane.SetPending(false)
		if msg.err != nil {
			m.chatPane.SetNotice(msg.err.Error())
		}

	case selectMsg:
		m.notice = ""
		cmds = append(cmds, m.action(func(ctx context.Context) error {
			return m.ctrl.SelectBackend(ctx, msg.kind, true)
		}))

	case connectMsg:
		m.notice = ""
		cmds = append(cmds, m.action(m.ctrl.Connect))

	case disconnectMsg:
		m.ctrl.Disconnect()

	case settingsSavedMsg:
		cmds = append(cmds, m.action(func(ctx context.Context) error {
			if err := m.ctrl.UpdateConfig(ctx, msg.kind, msg.cfg); err != nil {
				return err
			}
			if err := m.ctrl.SetAutoConnect(ctx, msg.autoConnect); err != nil {
				return err
			}
			return m.ctrl.SelectBackend(ctx, msg.kind, true)
		}))

	case actionDoneMsg:
		// Connection failures already show up through status events.
		var be *backend.Error
		if msg.err != nil && !errors.As(msg.err, &be) {
			m.notice = msg.err.Error()
		}

	case events.StatusChangedEvent, events.BackendSelectedEvent:
		var cmd tea.Cmd
		m.statusPane, cmd = m.statusPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.MessageAppendedEvent, events.SendFailedEvent:
		var cmd tea.Cmd
		m.chatPane, cmd = m.chatPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	default:
		if m.settingsPane.IsVisible() {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			break
		}
		var cmd tea.Cmd
		m.chatPane, cmd = m.chatPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// routeKey delegates a key to the focused pane.
func (m *Model) routeKey(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focusedPane {
	case PaneChat:
		m.chatPane, cmd = m.chatPane.Update(msg)
	case PaneBackends:
		m.statusPane, cmd = m.statusPane.Update(msg)
	}
	return cmd
}

func (m Model) send(text string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		_, err := ctrl.SendMessage(ctx, text)
		return sendDoneMsg{err: err}
	}
}

func (m Model) action(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: fn(ctx)}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Bye! 🦀\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.settingsPane.IsVisible() {
		return m.settingsPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.statusPane.View(), m.chatPane.View())

	footer := HelpView(m.focusedPane)
	if m.notice != "" {
		footer = StyleNotice.Render(m.notice)
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, footer)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 30) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar

	m.statusPane.SetSize(leftWidth, availableHeight)
	m.chatPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.chatPane.SetFocused(m.focusedPane == PaneChat)
	m.statusPane.SetFocused(m.focusedPane == PaneBackends)
}
