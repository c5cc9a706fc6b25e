//go:build portaudio

package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// portAudioDevice writes buffers to the default output stream using blocking
// I/O. The stream is reopened when the format changes.
type portAudioDevice struct {
	mu       sync.Mutex
	stream   *portaudio.Stream
	out      []float32
	rate     int
	channels int
}

func NewPortAudioDevice() (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &portAudioDevice{}, nil
}

func (d *portAudioDevice) open(rate, channels int) error {
	if d.stream != nil && d.rate == rate && d.channels == channels {
		return nil
	}
	d.closeStream()
	d.out = make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(rate), framesPerBuffer, d.out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}
	d.stream, d.rate, d.channels = stream, rate, channels
	return nil
}

func (d *portAudioDevice) Play(ctx context.Context, buf audio.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.open(buf.SampleRate(), buf.Channels()); err != nil {
		return err
	}
	samples := buf.Float32()
	for off := 0; off < len(samples); off += len(d.out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(d.out, samples[off:])
		for i := n; i < len(d.out); i++ {
			d.out[i] = 0
		}
		if err := d.stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

func (d *portAudioDevice) closeStream() {
	if d.stream == nil {
		return
	}
	_ = d.stream.Stop()
	_ = d.stream.Close()
	d.stream = nil
}

func (d *portAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStream()
	return portaudio.Terminate()
}
