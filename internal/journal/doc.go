// Package journal provides an optional SQLite-backed diagnostic log of
// configuration reloads and state machine transitions.
//
// The journal is append-only and write-only from the running gateway.
// It is never read back to restore rules, statuses or states; only
// `harpi trace` reads it.
//
// # Ordering
//
// Every entry is stamped with a seq from a logical clock shared by both
// tables. Reads order by seq, never by wall time. On open, the clock
// resumes after the highest seq already stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
