//go:build !speaker

package playback

import (
	"errors"
	"time"
)

func NewSpeakerDevice(time.Duration) (Device, error) {
	return nil, errors.New("speaker output not compiled in; rebuild with -tags speaker")
}
