package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cl33/RealTimeTTS/internal/bus"
	"github.com/cl33/RealTimeTTS/internal/capability"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/llm"
	"github.com/cl33/RealTimeTTS/internal/playback"
	"github.com/cl33/RealTimeTTS/internal/stt"
	"github.com/cl33/RealTimeTTS/internal/tts"
)

func recognizerLoader(cfg config.STTConfig, busClient *bus.Client, logger *slog.Logger) capability.Loader[stt.Recognizer] {
	return func(ctx context.Context) (stt.Recognizer, error) {
		switch cfg.Mode {
		case "exec":
			return stt.NewExecRecognizer(cfg)
		case "bus":
			if busClient == nil {
				return nil, fmt.Errorf("stt.mode=bus requires a bus connection")
			}
			return stt.NewBusRecognizer(busClient, cfg.Subject, logger)
		default:
			return stt.NewMockRecognizer(cfg.Utterances, 200*time.Millisecond), nil
		}
	}
}

func synthesizerLoader(cfg config.TTSConfig, logger *slog.Logger) capability.Loader[*tts.Adapter] {
	return func(ctx context.Context) (*tts.Adapter, error) {
		var model tts.Model
		switch cfg.Mode {
		case "exec":
			m, err := tts.NewExecModel(cfg.Command, cfg.VoiceReference)
			if err != nil {
				return nil, err
			}
			model = m
		default:
			model = tts.NewMockModel(cfg.SampleRate)
		}
		if cfg.TempDir != "" {
			if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
				return nil, fmt.Errorf("create tts temp dir: %w", err)
			}
		}
		return tts.NewAdapter(model, cfg.VoiceReference, logger,
			tts.WithTempDir(cfg.TempDir),
			tts.WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond),
		), nil
	}
}

func buildGenerator(cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Mode {
	case "ollama":
		return llm.NewOllamaGenerator(cfg.Endpoint, cfg.Model, &http.Client{}), nil
	case "exec":
		return llm.NewExecGenerator(cfg.Command)
	default:
		return llm.NewMockGenerator(cfg.MockChunks, 30*time.Millisecond), nil
	}
}

func buildDevice(cfg config.PlaybackConfig, busClient *bus.Client) (playback.Device, error) {
	switch cfg.Device {
	case "speaker":
		return playback.NewSpeakerDevice(time.Duration(cfg.BufferMS) * time.Millisecond)
	case "portaudio":
		return playback.NewPortAudioDevice()
	case "bus":
		if busClient == nil {
			return nil, fmt.Errorf("playback.device=bus requires a bus connection")
		}
		return playback.NewBusDevice(busClient, cfg.Target), nil
	default:
		return playback.NullDevice{Paced: true}, nil
	}
}
