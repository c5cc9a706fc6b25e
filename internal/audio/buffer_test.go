package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
)

func TestWAVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := Tone(16000, 250*time.Millisecond, 440)
	if err := EncodeWAVFile(path, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeWAVFile(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got.Format.SampleRate)
	}
	if len(got.Data) != len(src.Data) {
		t.Fatalf("samples = %d, want %d", len(got.Data), len(src.Data))
	}
	if got.Data[100] != src.Data[100] {
		t.Fatalf("sample 100 = %d, want %d", got.Data[100], src.Data[100])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeWAVFile(path); err == nil {
		t.Fatal("expected error for invalid wav")
	}
}

func TestBufferDerivedValues(t *testing.T) {
	buf := Buffer{PCM: &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           make([]int, 16000),
		SourceBitDepth: 16,
	}}
	if buf.Frames() != 8000 {
		t.Fatalf("frames = %d, want 8000", buf.Frames())
	}
	if buf.Duration() != time.Second {
		t.Fatalf("duration = %v, want 1s", buf.Duration())
	}
}

func TestPCM16LEAndFloat32(t *testing.T) {
	buf := Buffer{PCM: &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           []int{16384, -16384},
		SourceBitDepth: 16,
	}}
	pcm := buf.PCM16LE()
	if len(pcm) != 4 || pcm[0] != 0x00 || pcm[1] != 0x40 {
		t.Fatalf("unexpected pcm bytes %v", pcm)
	}
	f := buf.Float32()
	if f[0] != 0.5 || f[1] != -0.5 {
		t.Fatalf("unexpected float samples %v", f)
	}
}
