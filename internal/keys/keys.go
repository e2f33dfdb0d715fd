package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application. List
// navigation (j/k, arrows, paging) belongs to the bubbles list's own
// keymap and is not duplicated here.
type KeyMap struct {
	// Feed actions
	MarkRead    key.Binding
	MarkAllRead key.Binding
	Delete      key.Binding
	Refresh     key.Binding
	ClearAll    key.Binding

	// Views
	Setup key.Binding
	Help  key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		MarkRead: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "mark read"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("A"),
			key.WithHelp("A", "mark all read"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ClearAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "clear feed"),
		),
		Setup: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "account setup"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
