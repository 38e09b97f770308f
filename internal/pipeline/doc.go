// Package pipeline runs a claimed job through the full media-to-text
// pipeline: download, optional vocal isolation, transcription, word
// alignment, subtitle generation, and result persistence. It executes the
// low-cost local tier first and fails over to the remote accelerated tier
// when the local tier reports a recoverable failure.
package pipeline
