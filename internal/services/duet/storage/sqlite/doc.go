// Package sqlite implements the duet storage interfaces on SQLite.
//
// Sessions are written field by field under a compare-and-set on last_seq;
// actions are appended with contiguous per-session sequence numbers and
// chained hashes in the same transaction. Subscribers are woken in process
// after each commit and poll as a backstop.
package sqlite
