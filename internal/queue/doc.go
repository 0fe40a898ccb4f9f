// Package queue owns durable persistence for submissions awaiting delivery.
//
// Records live in a SQLite database opened in WAL mode with synchronous=FULL,
// so every enqueue survives a process kill. Attachment blobs are spooled as
// separate files next to the database and referenced by path, keeping status
// updates cheap; once a blob is uploaded its remote reference replaces the
// file and the local copy is deleted.
//
// All mutation flows through atomic per-record statements. No caller holds a
// record in memory and writes back a stale full copy.
package queue
