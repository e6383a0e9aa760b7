package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Quit key.Binding
	Help key.Binding
	Back key.Binding

	// Navigation
	Bills    key.Binding
	Codes    key.Binding
	Settings key.Binding

	// Actions
	Select key.Binding
	New    key.Binding
	Edit   key.Binding
	Delete key.Binding

	// Grid actions
	Toggle     key.Binding
	SelectAll  key.Binding
	Duplicate  key.Binding
	Bulk       key.Binding
	Payment    key.Binding
	Validate   key.Binding
	Stage      key.Binding
	Adjudicate key.Binding
	Export     key.Binding
	Reload     key.Binding
	Clear      key.Binding

	// Movement
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Home     key.Binding
	End      key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Bills:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bills")),
	Codes:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "codes")),
	Settings: key.NewBinding(key.WithKeys(","), key.WithHelp(",", "settings")),
	Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	New:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
	Edit:     key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit")),
	Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),

	Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select row")),
	SelectAll:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
	Duplicate:  key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "duplicate")),
	Bulk:       key.NewBinding(key.WithKeys("B"), key.WithHelp("B", "bulk assign")),
	Payment:    key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "payment")),
	Validate:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "validate")),
	Stage:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stage")),
	Adjudicate: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "adjudicate")),
	Export:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "export")),
	Reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Clear:      key.NewBinding(key.WithKeys("delete"), key.WithHelp("del", "clear cell")),

	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
	Right:    key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→/l", "right")),
	Home:     key.NewBinding(key.WithKeys("home", "0"), key.WithHelp("0", "first column")),
	End:      key.NewBinding(key.WithKeys("end", "$"), key.WithHelp("$", "last column")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
}
