package playback

import (
	"context"
	"fmt"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/cl33/RealTimeTTS/internal/protocol"
)

// Publisher is the part of the bus client the bus device needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusDevice forwards each buffer to remote speakers as a protocol.AudioChunk.
type BusDevice struct {
	pub     Publisher
	subject string
	target  string
}

func NewBusDevice(pub Publisher, target string) *BusDevice {
	return &BusDevice{pub: pub, subject: protocol.SubjectAudioOut, target: target}
}

func (d *BusDevice) Play(ctx context.Context, buf audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chunk := protocol.AudioChunk{
		TurnID:     buf.TurnID,
		Target:     d.target,
		Sequence:   buf.Sequence,
		Text:       buf.Text,
		SampleRate: buf.SampleRate(),
		Channels:   buf.Channels(),
		PCM:        buf.PCM16LE(),
	}
	if err := d.pub.PublishJSON(d.subject, chunk); err != nil {
		return fmt.Errorf("publish audio chunk: %w", err)
	}
	return nil
}

func (d *BusDevice) Close() error { return nil }
