package protocol

import "time"

// Transcript is a recognized utterance published by an external STT service.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// AudioChunk carries one synthesized segment as 16-bit little-endian PCM.
type AudioChunk struct {
	TurnID     string `json:"turn_id"`
	Target     string `json:"target"`
	Sequence   int    `json:"sequence"`
	Text       string `json:"text,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
}

// TurnEvent marks a turn state transition. It never carries utterance or
// response text.
type TurnEvent struct {
	TurnID    string    `json:"turn_id"`
	Type      string    `json:"type"`
	Segments  int       `json:"segments,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latency_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectAudioOut          = "tts.audio.out"
	SubjectTurnEventPrefix   = "turn.event"
)

const (
	EventTurnStarted     = "turn.started"
	EventSegmentEnqueued = "segment.enqueued"
	EventSegmentDropped  = "segment.dropped"
	EventTurnCompleted   = "turn.completed"
	EventTurnFailed      = "turn.failed"
)
