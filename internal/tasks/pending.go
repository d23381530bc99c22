package tasks

import "github.com/desertthunder/jukebox/internal/models"

// pendingWindow is how many ledger records and snapshot items the pending-next check compares.
const pendingWindow = 2

// NextSlotFilled reports whether the device's next slot already holds a song the jukebox pushed.
//
// recent lists ledger song ids newest first. With fewer than two records the slot counts as empty. Otherwise the
// slot is filled only when both of the two newest injected ids appear among the first two snapshot items, which
// means the song injected last has not started playing yet.
func NextSlotFilled(snapshot models.Snapshot, recent []string) bool {
	if len(recent) < pendingWindow {
		return false
	}

	onDevice := make(map[string]struct{}, pendingWindow)
	for _, id := range snapshot.Head(pendingWindow).IDs() {
		onDevice[id] = struct{}{}
	}

	matched := make(map[string]struct{}, pendingWindow)
	for _, id := range recent[:pendingWindow] {
		if _, ok := onDevice[id]; ok {
			matched[id] = struct{}{}
		}
	}
	return len(matched) >= pendingWindow
}
