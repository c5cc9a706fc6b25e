// Package segment cuts a live token stream into speakable text segments.
//
// Boundaries are single runes, matched without any linguistic analysis, so
// "3.14" is split after "3.". Latency wins over precision here.
package segment

import (
	"strings"
	"unicode/utf8"
)

// Boundaries lists the runes that close a segment: Latin and CJK sentence
// punctuation, commas, and newline.
const Boundaries = ".,?!\n。，？！"

// Segmenter accumulates text fragments for a single turn. It is not safe for
// concurrent use.
type Segmenter struct {
	pending string
}

func New() *Segmenter {
	return &Segmenter{}
}

// Feed appends chunk and returns every segment completed by it, left to right.
func (s *Segmenter) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	s.pending += chunk

	var out []string
	for {
		idx := strings.IndexAny(s.pending, Boundaries)
		if idx < 0 {
			return out
		}
		_, size := utf8.DecodeRuneInString(s.pending[idx:])
		cut := idx + size
		segment := strings.TrimSpace(s.pending[:cut])
		s.pending = s.pending[cut:]
		if segment == "" {
			continue
		}
		out = append(out, segment)
	}
}

// Flush returns the trimmed remainder, if any, and clears the accumulator.
func (s *Segmenter) Flush() (string, bool) {
	rest := strings.TrimSpace(s.pending)
	s.pending = ""
	return rest, rest != ""
}

// Pending returns the text not yet emitted. The orchestrator logs its size
// when a stream breaks.
func (s *Segmenter) Pending() string {
	return s.pending
}
