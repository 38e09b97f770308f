// Package preflight validates the runtime environment before the daemon
// starts work: directory access, free disk space, required binaries, and
// collaborator credentials.
package preflight
