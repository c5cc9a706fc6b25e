//go:build !portaudio

package playback

import "errors"

func NewPortAudioDevice() (Device, error) {
	return nil, errors.New("portaudio output not compiled in; rebuild with -tags portaudio")
}
