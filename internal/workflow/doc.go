// Package workflow hosts the job queue poller: a single active consumer that
// claims one queued job at a time, drives it through the pipeline
// orchestrator to a terminal state, and keeps the loop alive across
// individual job failures.
package workflow
