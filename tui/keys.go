package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the playback bindings.
type KeyMap struct {
	Quit    key.Binding
	Pause   key.Binding
	Back    key.Binding
	Forward key.Binding
	VolDown key.Binding
	VolUp   key.Binding
	Help    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Pause: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "pause"),
		),
		Back: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "-10s"),
		),
		Forward: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "+10s"),
		),
		VolDown: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "vol-"),
		),
		VolUp: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "vol+"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Back, k.Forward, k.VolDown, k.VolUp, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Help}}
}
