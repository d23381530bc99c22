// Package ui implements an interactive terminal interface for the party queue using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [QueueView] : The ranked queue, refreshed every [DefaultPollInterval], with voting on the selected song
//  2. [AddView] : A text input that admits a Spotify link, URI or track id
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// When the process also runs the reconciliation loop, tick results flow through [Options.Updates] and are shown in
// the status line. [Options.Ticker] enables a manual tick.
//
// Keyboard navigation uses vim-style bindings (j/k, +/-, a, t, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
