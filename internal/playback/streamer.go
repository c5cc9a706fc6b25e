package playback

import (
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// stoppableStreamer ends its stream once stopped, so the speaker mixer drops
// it instead of holding a silent entry.
type stoppableStreamer struct {
	beep.Streamer
	stopped atomic.Bool
}

func (s *stoppableStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.stopped.Load() {
		return 0, false
	}
	return s.Streamer.Stream(samples)
}

func (s *stoppableStreamer) Stop() {
	s.stopped.Store(true)
}
