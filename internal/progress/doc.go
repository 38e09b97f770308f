// Package progress bridges the live in-memory progress table with the
// durable job store.
//
// The tracker is an injectable value owned by the daemon, written only by
// the pipeline orchestrator, and consulted by readers before they fall back
// to the durable row. The durable terminal record is always written before
// the live entry is removed, so the two views never disagree about a
// finished job.
package progress
