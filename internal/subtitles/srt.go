// Package subtitles turns word-level timestamps into SRT cue text and plain
// transcript text.
package subtitles

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MaxWordsPerCue bounds cue length by word count.
	MaxWordsPerCue = 10
	// MaxCueSpanSeconds bounds cue length by elapsed time.
	MaxCueSpanSeconds = 5.0
)

// Word is one transcribed word with its aligned time range in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Cue is one subtitle entry spanning a contiguous run of words.
type Cue struct {
	Index int
	Start float64
	End   float64
	Words []Word
}

// Text joins the cue's words with single spaces.
func (c Cue) Text() string {
	parts := make([]string, 0, len(c.Words))
	for _, w := range c.Words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}

// Cues partitions words into cues of at most MaxWordsPerCue words or
// MaxCueSpanSeconds elapsed seconds, preserving word order exactly.
func Cues(words []Word) []Cue {
	if len(words) == 0 {
		return nil
	}

	var cues []Cue
	var group []Word
	var groupStart float64

	flush := func(end float64) {
		if len(group) == 0 {
			return
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: groupStart,
			End:   end,
			Words: group,
		})
		group = nil
	}

	for _, word := range words {
		if len(group) == 0 {
			groupStart = word.Start
		}
		group = append(group, word)
		if len(group) >= MaxWordsPerCue || word.End-groupStart >= MaxCueSpanSeconds {
			flush(word.End)
		}
	}
	if len(group) > 0 {
		flush(group[len(group)-1].End)
	}
	return cues
}

// SRT renders the words as SubRip subtitle text.
func SRT(words []Word) string {
	cues := Cues(words)
	if len(cues) == 0 {
		return ""
	}
	var b strings.Builder
	for _, cue := range cues {
		fmt.Fprintf(&b, "%d\n", cue.Index)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(cue.Start), FormatTimestamp(cue.End))
		b.WriteString(cue.Text())
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// PlainText joins all words into a single transcript line.
func PlainText(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
