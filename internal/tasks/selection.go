package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/repositories"
)

// PickNext chooses the next song from the queue rows.
//
// When anyVotes is true the row with the highest vote sum wins and equal sums go to the smallest ordinal.
// Otherwise the smallest ordinal wins. Row order does not matter. Reports false for an empty queue.
func PickNext(rows []models.RankedSong, anyVotes bool) (models.RankedSong, bool) {
	if len(rows) == 0 {
		return models.RankedSong{}, false
	}

	best := rows[0]
	for _, row := range rows[1:] {
		switch {
		case anyVotes && row.VoteSum > best.VoteSum:
			best = row
		case (!anyVotes || row.VoteSum == best.VoteSum) && row.Ordinal < best.Ordinal:
			best = row
		}
	}
	return best, true
}

// SelectNext reads the queue and applies [PickNext] to the rows eligible accepts. A nil eligible accepts every
// row. Returns nil without error when no row is eligible.
func SelectNext(ctx context.Context, queue *repositories.QueueRepository, eligible func(models.RankedSong) bool) (*models.RankedSong, error) {
	anyVotes, err := queue.HasVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select next song: %w", err)
	}

	rows, err := queue.Ranked(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to select next song: %w", err)
	}

	if eligible != nil {
		kept := rows[:0]
		for _, row := range rows {
			if eligible(row) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	next, ok := PickNext(rows, anyVotes)
	if !ok {
		return nil, nil
	}
	return &next, nil
}
