// Package session persists per-identity conversation state in SQLite.
//
// Each identity owns at most one session row holding the ordered message
// log. Rows carry an expiry refreshed on every append; expired rows are
// treated as absent and removed by the sweeper. Delivery markers live in
// a separate short-TTL table and back at-most-once handling of inbound
// message ids.
//
// Appends for one identity are read-modify-write inside a transaction
// but are not serialized across concurrent invocations; interleaved
// appends may reorder turns without losing them.
package session
