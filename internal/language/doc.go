// Package language normalizes the language identifiers reported by
// transcription backends. Whisper-style services answer with a mix of
// ISO 639-1 codes, ISO 639-2 codes, and full words ("english"); the
// pipeline stores the ISO 639-1 form while the CLI and notifications show
// the display name.
package language
