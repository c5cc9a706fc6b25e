package playback

import (
	"context"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
)

// NullDevice discards audio. When Paced is set it holds each buffer for its
// real duration, so queue timing matches a real device.
type NullDevice struct {
	Paced bool
}

func (d NullDevice) Play(ctx context.Context, buf audio.Buffer) error {
	if !d.Paced {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(buf.Duration()):
		return nil
	}
}

func (NullDevice) Close() error { return nil }
