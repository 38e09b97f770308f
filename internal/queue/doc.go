// Package queue persists transcription jobs in SQLite.
//
// It owns the job lifecycle statuses, the append-only step log serialized
// into each job row, and the conditional claim used by the poller so a
// crash-and-restart never silently re-dispatches an in-flight job.
package queue
