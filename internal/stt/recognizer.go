package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by NextUtterance once the recognizer can no longer
// produce utterances.
var ErrClosed = errors.New("recognizer closed")

// Recognizer abstracts STT backends. NextUtterance blocks until the next
// finalized utterance; an empty string means nothing new was heard and the
// caller should ask again.
type Recognizer interface {
	NextUtterance(ctx context.Context) (string, error)
	Close() error
}
