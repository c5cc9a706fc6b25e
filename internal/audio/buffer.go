package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Buffer is one decoded clip ready for playback. It is produced once per
// segment and must not be mutated after it is handed to the playback queue.
type Buffer struct {
	TurnID   string
	Sequence int
	Text     string
	PCM      *goaudio.IntBuffer
}

func (b Buffer) SampleRate() int {
	if b.PCM == nil || b.PCM.Format == nil {
		return 0
	}
	return b.PCM.Format.SampleRate
}

func (b Buffer) Channels() int {
	if b.PCM == nil || b.PCM.Format == nil || b.PCM.Format.NumChannels <= 0 {
		return 1
	}
	return b.PCM.Format.NumChannels
}

func (b Buffer) BitDepth() int {
	if b.PCM == nil || b.PCM.SourceBitDepth <= 0 {
		return 16
	}
	return b.PCM.SourceBitDepth
}

// Frames is the number of samples per channel.
func (b Buffer) Frames() int {
	if b.PCM == nil {
		return 0
	}
	return len(b.PCM.Data) / b.Channels()
}

func (b Buffer) Duration() time.Duration {
	rate := b.SampleRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(rate)
}

// Float32 returns interleaved samples normalized to [-1, 1].
func (b Buffer) Float32() []float32 {
	if b.PCM == nil {
		return nil
	}
	scale := float32(int64(1) << (b.BitDepth() - 1))
	out := make([]float32, len(b.PCM.Data))
	for i, v := range b.PCM.Data {
		out[i] = float32(v) / scale
	}
	return out
}

// PCM16LE returns interleaved little-endian 16-bit samples.
func (b Buffer) PCM16LE() []byte {
	if b.PCM == nil {
		return nil
	}
	shift := b.BitDepth() - 16
	out := make([]byte, len(b.PCM.Data)*2)
	for i, v := range b.PCM.Data {
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodeWAVFile reads a whole wav file into memory.
func DecodeWAVFile(path string) (*goaudio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav file has no sample rate")
	}
	if buf.SourceBitDepth <= 0 {
		buf.SourceBitDepth = int(dec.BitDepth)
	}
	return buf, nil
}

// EncodeWAVFile writes buf as a PCM wav file.
func EncodeWAVFile(path string, buf *goaudio.IntBuffer) error {
	if buf == nil || buf.Format == nil {
		return errors.New("wav buffer has no format")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Tone generates a mono 16-bit sine clip.
func Tone(sampleRate int, d time.Duration, freq float64) *goaudio.IntBuffer {
	frames := int(int64(sampleRate) * int64(d) / int64(time.Second))
	data := make([]int, frames)
	for i := range data {
		data[i] = int(0.2 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}
