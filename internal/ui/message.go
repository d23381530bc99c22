package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgQueueFetched MsgKind = iota
	MsgVoted
	MsgAdmitted
	MsgTicked
	MsgPoll
)

type queueResult struct {
	rows []models.RankedSong
	err  error
}

type actionResult struct {
	subject string
	ok      bool
	err     error
}

// queueFetchedMsg is the constructor for [MsgQueueFetched]
func queueFetchedMsg(rows []models.RankedSong, err error) Msg {
	return Msg{kind: MsgQueueFetched, data: queueResult{rows, err}}
}

// votedMsg is the constructor for [MsgVoted]
func votedMsg(songID string, ok bool, err error) Msg {
	return Msg{kind: MsgVoted, data: actionResult{songID, ok, err}}
}

// admittedMsg is the constructor for [MsgAdmitted]
func admittedMsg(link string, ok bool, err error) Msg {
	return Msg{kind: MsgAdmitted, data: actionResult{link, ok, err}}
}

type tickEvent struct {
	result tasks.TickResult
	listen bool // Result came from Options.Updates; re-arm the listener
}

// tickedMsg is the constructor for [MsgTicked]
func tickedMsg(ev tickEvent) Msg {
	return Msg{kind: MsgTicked, data: ev}
}

// pollMsg is the constructor for [MsgPoll]
func pollMsg() Msg {
	return Msg{kind: MsgPoll}
}
