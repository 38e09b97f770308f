// Package api exposes the HTTP query interface for the job queue: submitting
// jobs, reading live status through the progress bridge, and retrying failed
// work. Readers always see the live progress entry first, falling back to the
// durable row once it has been removed.
package api
