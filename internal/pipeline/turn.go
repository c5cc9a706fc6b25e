// Package pipeline runs conversational turns: utterance in, streamed text
// through segmentation and synthesis, audio buffers out to the playback
// queue in order.
package pipeline

import (
	"fmt"
	"time"
)

type TurnState string

const (
	AwaitingUtterance   TurnState = "awaiting_utterance"
	StreamingGeneration TurnState = "streaming_generation"
	Synthesizing        TurnState = "synthesizing"
	TurnComplete        TurnState = "turn_complete"
)

// Turn is one utterance and the response produced for it.
type Turn struct {
	ID        string
	Utterance string
	StartedAt time.Time
	State     TurnState
	Segments  int
	Dropped   int
}

// GenerationStreamError means the text stream broke mid-turn. Segments
// completed before the failure, plus the flushed remainder, are still spoken.
type GenerationStreamError struct {
	TurnID string
	Err    error
}

func (e *GenerationStreamError) Error() string {
	return fmt.Sprintf("generation stream for turn %s: %v", e.TurnID, e.Err)
}

func (e *GenerationStreamError) Unwrap() error {
	return e.Err
}

// sinkError marks a failure to hand audio to the playback queue so it is not
// mistaken for a generation failure.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }
