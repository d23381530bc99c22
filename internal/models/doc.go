// Package models defines the domain entities shared by the store, the playback adapter and the HTTP layer.
//
//   - [Song] : catalog entry with the replay timestamp
//   - [QueueEntry] : a song's slot in the ranked queue, ordered by admission
//   - [Vote] : a client's integer vote on a queue entry
//   - [RankedSong] : listing row with the vote sum and the caller's own vote
//   - [Injection] : ledger record of a push to the device
//   - [Snapshot] : the device's current track and upcoming queue
//
// All timestamps are UTC.
package models
