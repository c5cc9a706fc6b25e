package llm

import (
	"context"
	"time"

	"github.com/cl33/RealTimeTTS/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	TurnID      string
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	TurnID           string
	Content          string
	Done             bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable streaming LLM backend. Generate calls
// consumer once per chunk, in arrival order, and returns when the stream
// ends. A consumer error aborts the stream and is returned as is.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// RequestFromConfig builds request defaults from config.
func RequestFromConfig(cfg config.LLMConfig, turnID, prompt string) Request {
	return Request{
		TurnID:      turnID,
		Prompt:      prompt,
		System:      cfg.System,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}
