package tui

// Keybinding constants
const (
	KeyTab        = "tab"
	KeyShiftTab   = "shift+tab"
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyEnter      = "enter"
	KeyEsc        = "esc"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyConnect    = "c"
	KeyDisconnect = "d"
	KeySettings   = "ctrl+s"
	KeyClear      = "ctrl+l"
)

// HelpView returns a one-line help bar for the focused pane.
func HelpView(focus PaneID) string {
	if focus == PaneBackends {
		return StyleHelp.Render("Tab: chat | j/k: move | Enter: select | c: connect | d: disconnect | ctrl+s: settings | q: quit")
	}
	return StyleHelp.Render("Tab: backends | Enter: send | PgUp/PgDn: scroll | ctrl+l: clear | ctrl+s: settings | ctrl+c: quit")
}
