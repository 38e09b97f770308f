// Package daemon ties the long-running pieces together: it enforces
// single-instance execution with a file lock, starts the queue poller, and
// serves the HTTP query interface.
package daemon
