package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle     key.Binding
	Back       key.Binding
	Forward    key.Binding
	Restart    key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "play/pause"),
		),
		Back: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "back"),
		),
		Forward: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "forward"),
		),
		Restart: key.NewBinding(
			key.WithKeys("home", "0"),
			key.WithHelp("0", "restart"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "=", "up"),
			key.WithHelp("+", "louder"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-", "down"),
			key.WithHelp("-", "quieter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Restart},
		{k.Back, k.Forward},
		{k.VolumeUp, k.VolumeDown},
		{k.Help, k.Quit},
	}
}
