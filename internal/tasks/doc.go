// Package tasks holds the jukebox's core behaviour: admission, voting, next-song selection and the loop that
// keeps the playback device supplied.
//
// # Client Operations
//
// [Jukebox] serves the HTTP layer, CLI and TUI:
//
//  1. [Jukebox.Admit] : add a song to the ranked queue
//     - Resolves unknown ids through the catalog and stores them
//     - Rejects songs already queued or injected within the replay window (30 minutes by default)
//     - Concurrent admissions of one song are settled by the queue's UNIQUE constraint
//
//  2. [Jukebox.Vote] : upsert a client's vote on a queued song (last write wins, any integer)
//
//  3. [Jukebox.Queue] : list the queue by vote sum, then admission order, with the caller's own vote
//
// # Selection
//
// [PickNext] is the pure rule. When any vote exists the highest vote sum wins, ties going to the earliest
// admission. Without votes the earliest admission wins.
//
// # Reconciliation
//
// The device only accepts appends and reports the current and upcoming tracks. [Reconciler.Tick] reads that
// snapshot, asks [NextSlotFilled] whether the last injection is still waiting, and otherwise pushes the selected
// song. After a successful push it records the injection, removes the song from the queue and stamps
// last_played. Each of those steps is best-effort.
//
// Tick results are published without blocking on an optional channel, the way the CLI and TUI observe progress.
//
// # Supervision
//
// [NewSupervisor] builds a suture tree; [ReconcileService] and [HTTPServerService] run the loop and the API
// under it for `jukebox serve`.
package tasks
