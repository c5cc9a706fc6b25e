package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	Traces         bool   `yaml:"traces"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Playback    PlaybackConfig   `yaml:"playback"`
	Startup     StartupConfig    `yaml:"startup"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Mode       string   `yaml:"mode"` // mock, exec, bus
	Command    string   `yaml:"command"`
	ModelPath  string   `yaml:"model_path"`
	Language   string   `yaml:"language"`
	Utterances []string `yaml:"utterances"`
	Subject    string   `yaml:"subject"`
}

type LLMConfig struct {
	Mode              string   `yaml:"mode"` // mock, ollama, exec
	Endpoint          string   `yaml:"endpoint"`
	Command           string   `yaml:"command"`
	Model             string   `yaml:"model"`
	System            string   `yaml:"system"`
	MaxTokens         int      `yaml:"max_tokens"`
	Temperature       float64  `yaml:"temperature"`
	RequestTimeoutMS  int      `yaml:"request_timeout_ms"`
	MockChunks        []string `yaml:"mock_chunks"`
	SuppressReasoning bool     `yaml:"suppress_reasoning"` // drop text inside <think> tags too
}

type TTSConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	VoiceReference string `yaml:"voice_reference"`
	TempDir        string `yaml:"temp_dir"`
	SampleRate     int    `yaml:"sample_rate"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

type PlaybackConfig struct {
	Device         string `yaml:"device"` // speaker, portaudio, bus, null
	MaxQueue       int    `yaml:"max_queue"`
	DrainTimeoutMS int    `yaml:"drain_timeout_ms"`
	BufferMS       int    `yaml:"buffer_ms"`
	Target         string `yaml:"target"`
}

type StartupConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "realtimetts",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			Traces:         false,
			OTLPInsecure:   true,
			MetricsEnabled: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/realtimetts-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 7,
			MaxSessions:   1000,
		},
		STT: STTConfig{
			Mode:    "mock",
			Subject: "stt.text.final",
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "deepseek-r1:8b",
			MaxTokens:   50,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Mode:           "mock",
			VoiceReference: "1.wav",
			SampleRate:     24000,
		},
		Playback: PlaybackConfig{
			Device:   "null",
			BufferMS: 100,
			Target:   "default",
		},
		Startup: StartupConfig{
			TimeoutMS: 30000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "RTTS_RUNTIME_NAME")
	overrideString(&cfg.Environment, "RTTS_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "RTTS_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "RTTS_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "RTTS_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "RTTS_TELEMETRY_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.Traces, "RTTS_TELEMETRY_TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "RTTS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "RTTS_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.MetricsEnabled, "RTTS_TELEMETRY_METRICS_ENABLED")
	overrideBool(&cfg.Bus.Enabled, "RTTS_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "RTTS_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "RTTS_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "RTTS_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "RTTS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "RTTS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "RTTS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "RTTS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "RTTS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "RTTS_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "RTTS_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "RTTS_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "RTTS_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "RTTS_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "RTTS_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.STT.Mode, "RTTS_STT_MODE")
	overrideString(&cfg.STT.Command, "RTTS_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "RTTS_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "RTTS_STT_LANGUAGE")
	overrideString(&cfg.STT.Subject, "RTTS_STT_SUBJECT")
	overrideString(&cfg.LLM.Mode, "RTTS_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "RTTS_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "RTTS_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "RTTS_LLM_MODEL")
	overrideString(&cfg.LLM.System, "RTTS_LLM_SYSTEM")
	overrideInt(&cfg.LLM.MaxTokens, "RTTS_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "RTTS_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.RequestTimeoutMS, "RTTS_LLM_REQUEST_TIMEOUT_MS")
	overrideBool(&cfg.LLM.SuppressReasoning, "RTTS_LLM_SUPPRESS_REASONING")
	overrideString(&cfg.TTS.Mode, "RTTS_TTS_MODE")
	overrideString(&cfg.TTS.Command, "RTTS_TTS_COMMAND")
	overrideString(&cfg.TTS.VoiceReference, "RTTS_TTS_VOICE_REFERENCE")
	overrideString(&cfg.TTS.TempDir, "RTTS_TTS_TEMP_DIR")
	overrideInt(&cfg.TTS.SampleRate, "RTTS_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutMS, "RTTS_TTS_TIMEOUT_MS")
	overrideString(&cfg.Playback.Device, "RTTS_PLAYBACK_DEVICE")
	overrideInt(&cfg.Playback.MaxQueue, "RTTS_PLAYBACK_MAX_QUEUE")
	overrideInt(&cfg.Playback.DrainTimeoutMS, "RTTS_PLAYBACK_DRAIN_TIMEOUT_MS")
	overrideInt(&cfg.Playback.BufferMS, "RTTS_PLAYBACK_BUFFER_MS")
	overrideString(&cfg.Playback.Target, "RTTS_PLAYBACK_TARGET")
	overrideInt(&cfg.Startup.TimeoutMS, "RTTS_STARTUP_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "bus":
	default:
		return errors.New("stt.mode must be one of mock|exec|bus")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.Mode == "bus" {
		if !cfg.Bus.Enabled {
			return errors.New("stt.mode=bus requires bus.enabled")
		}
		if cfg.STT.Subject == "" {
			return errors.New("stt.subject must be set when mode=bus")
		}
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" {
		if cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
		if cfg.LLM.Model == "" {
			return errors.New("llm.model must be set when mode=ollama")
		}
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.RequestTimeoutMS < 0 {
		return errors.New("llm.request_timeout_ms must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.VoiceReference == "" {
		return errors.New("tts.voice_reference must not be empty")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.TimeoutMS < 0 {
		return errors.New("tts.timeout_ms must be >= 0")
	}
	switch cfg.Playback.Device {
	case "speaker", "portaudio", "null":
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("playback.device=bus requires bus.enabled")
		}
	default:
		return errors.New("playback.device must be one of speaker|portaudio|bus|null")
	}
	if cfg.Playback.MaxQueue < 0 {
		return errors.New("playback.max_queue must be >= 0")
	}
	if cfg.Playback.DrainTimeoutMS < 0 {
		return errors.New("playback.drain_timeout_ms must be >= 0")
	}
	if cfg.Startup.TimeoutMS <= 0 {
		return errors.New("startup.timeout_ms must be positive")
	}
	return nil
}
