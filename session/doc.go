// Package session implements the authoritative store of active sessions.
//
// Sessions move through a simple lifecycle: created by a successful login,
// renewed by every successful validation (sliding expiration), and removed
// by explicit logout, expiry, inactivity, capacity eviction, or an
// administrative force logout. All terminal states converge to removal;
// there is no resurrection.
//
// The store indexes sessions first by username, then by session ID, keeping
// per-user operations proportional to that user's session count. A per-user
// cap (default 5) reclaims a dead session when one exists and otherwise
// refuses the new login rather than evicting a live session.
//
// The full session map is durable-backed by a JSON file so a process restart
// does not invalidate every logged-in user. Writes are debounced: mutations
// mark the store dirty and a background loop writes at most once per quiet
// interval, using temp-file-then-rename so a crash mid-write never corrupts
// the file. At most the last debounce interval of activity can be lost.
package session
