// Package repositories implements SQLite persistence for the party queue.
//
// Three tables carry all state, and every invariant that concurrent clients could race on is enforced by the
// schema rather than by application locks.
//
// Key Implementations:
//   - [SongRepository] : catalog of every referenced track, with its last_played timestamp
//   - [QueueRepository] : admitted songs (one entry per song) and per-client votes
//   - [LedgerRepository] : append-only injection history read by the pending-next check
//
// Ordinals are the AUTOINCREMENT id of the queue row, so they increase strictly and are never reused after a
// removal. Vote ties in [QueueRepository.Ranked] are broken by ordinal.
package repositories
