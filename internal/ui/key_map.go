package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	upvote   key.Binding
	downvote key.Binding
	unvote   key.Binding
	add      key.Binding
	tick     key.Binding
	refresh  key.Binding
	submit   key.Binding
	back     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		upvote:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "upvote")),
		downvote: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "downvote")),
		unvote:   key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "clear vote")),
		add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add song")),
		tick:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tick now")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.upvote, k.downvote, k.add, k.tick, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.refresh},
		{k.upvote, k.downvote, k.unvote},
		{k.add, k.submit, k.back},
		{k.tick, k.quit},
	}
}
