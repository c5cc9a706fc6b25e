//go:build speaker

package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// speakerDevice plays through the system output with beep. The speaker is
// initialized with the first buffer's rate; later buffers at other rates are
// resampled.
type speakerDevice struct {
	mu         sync.Mutex
	bufferSize time.Duration
	rate       beep.SampleRate
	ready      bool
}

func NewSpeakerDevice(bufferSize time.Duration) (Device, error) {
	if bufferSize <= 0 {
		bufferSize = 100 * time.Millisecond
	}
	return &speakerDevice{bufferSize: bufferSize}, nil
}

func (d *speakerDevice) Play(ctx context.Context, buf audio.Buffer) error {
	rate := beep.SampleRate(buf.SampleRate())
	if rate <= 0 {
		return fmt.Errorf("buffer has no sample rate")
	}

	d.mu.Lock()
	if !d.ready {
		if err := speaker.Init(rate, rate.N(d.bufferSize)); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("init speaker: %w", err)
		}
		d.rate = rate
		d.ready = true
	}
	outRate := d.rate
	d.mu.Unlock()

	var streamer beep.Streamer = newPCMStreamer(buf)
	if rate != outRate {
		streamer = beep.Resample(4, rate, outRate, streamer)
	}

	done := make(chan struct{})
	stream := &stoppableStreamer{Streamer: beep.Seq(streamer, beep.Callback(func() {
		close(done)
	}))}
	speaker.Play(stream)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		stream.Stop()
		return ctx.Err()
	}
}

func (d *speakerDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		speaker.Close()
		d.ready = false
	}
	return nil
}

// newPCMStreamer feeds interleaved samples to beep as stereo frames. Mono is
// duplicated on both channels; extra channels beyond two are dropped.
func newPCMStreamer(buf audio.Buffer) beep.Streamer {
	samples := buf.Float32()
	channels := buf.Channels()
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		n := 0
		for n < len(out) && pos+channels <= len(samples) {
			left := float64(samples[pos])
			right := left
			if channels > 1 {
				right = float64(samples[pos+1])
			}
			out[n] = [2]float64{left, right}
			pos += channels
			n++
		}
		return n, n > 0
	})
}
