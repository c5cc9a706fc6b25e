package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// streamLine is one NDJSON object of an Ollama-style generate stream.
type streamLine struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
}

// decodeStream reads newline-delimited JSON from r until EOF or a done line.
func decodeStream(ctx context.Context, r io.Reader, turnID string, consumer func(Chunk) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	start := time.Now()
	var promptTokens, completionTokens int
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg streamLine
		if err := json.Unmarshal(line, &msg); err != nil {
			return err
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
		if msg.EvalCount > 0 {
			completionTokens = msg.EvalCount
		}
		if msg.PromptEvalCount > 0 {
			promptTokens = msg.PromptEvalCount
		}
		if err := consumer(Chunk{
			TurnID:           turnID,
			Content:          msg.Response,
			Done:             msg.Done,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			Latency:          time.Since(start),
		}); err != nil {
			return err
		}
		if msg.Done {
			return nil
		}
	}
	return scanner.Err()
}
