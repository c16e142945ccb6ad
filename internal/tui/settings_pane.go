package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
)

// SettingsPaneModel manages the backend settings form overlay.
type SettingsPaneModel struct {
	form    *huh.Form
	kind    backend.Kind
	width   int
	height  int
	visible bool

	// Huh writes through these pointers, so they live outside the
	// struct that Bubble Tea copies on every update.
	values *formValues
}

type formValues struct {
	baseURL     string
	token       string
	model       string
	autoConnect bool
}

// settingsSavedMsg carries the submitted form back to the root model.
type settingsSavedMsg struct {
	kind        backend.Kind
	cfg         backend.Config
	autoConnect bool
}

// NewSettingsPaneModel creates a hidden settings pane.
func NewSettingsPaneModel() SettingsPaneModel {
	return SettingsPaneModel{}
}

// Open shows the form for kind, prefilled from set.
func (m *SettingsPaneModel) Open(kind backend.Kind, set config.Set) tea.Cmd {
	cfg := set.Backend(kind)
	m.kind = kind
	m.values = &formValues{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		model:       cfg.Model,
		autoConnect: set.AutoConnect,
	}
	m.visible = true

	m.buildForm()
	m.applySize()
	return m.form.Init()
}

// buildForm constructs one input per configuration field of the kind.
func (m *SettingsPaneModel) buildForm() {
	desc, _ := backend.Describe(m.kind)
	v := m.values

	var fields []huh.Field
	for _, f := range desc.Fields {
		input := huh.NewInput().
			Key(string(f.Name)).
			Title(f.Label)

		switch f.Name {
		case backend.FieldBaseURL:
			input.Value(&v.baseURL).Placeholder(desc.SuggestedBaseURL)
		case backend.FieldToken, backend.FieldAPIKey:
			input.Value(&v.token).EchoMode(huh.EchoModePassword)
		case backend.FieldModel:
			input.Value(&v.model).
				Placeholder(desc.DefaultModel()).
				Suggestions(desc.SuggestedModels)
		}
		if f.Required {
			label := f.Label
			input.Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("%s is required", label)
				}
				return nil
			})
		}
		fields = append(fields, input)
	}

	fields = append(fields, huh.NewConfirm().
		Key("autoConnect").
		Title("Connect on start-up").
		Value(&v.autoConnect))

	m.form = huh.NewForm(
		huh.NewGroup(fields...).
			Title(desc.DisplayName).
			Description(desc.Description),
	)
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		// Cancel without saving
		m.visible = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.visible = false
		saved := m.submitted()
		return m, tea.Batch(cmd, func() tea.Msg { return saved })
	}

	return m, cmd
}

// submitted returns the form contents as a save request.
func (m SettingsPaneModel) submitted() settingsSavedMsg {
	v := m.values
	return settingsSavedMsg{
		kind: m.kind,
		cfg: backend.Config{
			BaseURL: strings.TrimSpace(v.baseURL),
			Token:   strings.TrimSpace(v.token),
			Model:   strings.TrimSpace(v.model),
		},
		autoConnect: v.autoConnect,
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("208")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("208")).
		Render("⚙ Backend Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.applySize()
}

func (m *SettingsPaneModel) applySize() {
	if m.form != nil && m.width > 8 && m.height > 8 {
		m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
