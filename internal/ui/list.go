package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/jukebox/internal/models"
)

var _ list.Item = queueItem{}

// queueItem wraps [models.RankedSong] to implement [list.Item].
type queueItem struct {
	song models.RankedSong
}

func (i queueItem) FilterValue() string { return i.song.Name + " " + i.song.Artist }
func (i queueItem) Title() string {
	return fmt.Sprintf("%s  %s", styles.Votes(fmt.Sprintf("%+d", i.song.VoteSum), i.song.VoteSum), i.song.Name)
}
func (i queueItem) Description() string {
	desc := i.song.Artist
	if i.song.ClientVote != 0 {
		desc = fmt.Sprintf("%s • you voted %+d", desc, i.song.ClientVote)
	}
	return desc
}

func queueItems(rows []models.RankedSong) []list.Item {
	items := make([]list.Item, len(rows))
	for i, r := range rows {
		items[i] = queueItem{song: r}
	}
	return items
}
