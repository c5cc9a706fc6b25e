package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execModel runs the synthesis command once per segment with
// --voice, --text and --output appended to its arguments.
type execModel struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecModel fails when the command is empty or the voice reference is
// unreadable, so a bad setup surfaces at startup instead of on the first
// segment.
func NewExecModel(command, voiceRef string) (Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("tts command: %w", err)
	}
	if _, err := os.Stat(voiceRef); err != nil {
		return nil, fmt.Errorf("voice reference: %w", err)
	}
	return &execModel{cmd: args}, nil
}

func (e *execModel) Infer(ctx context.Context, voiceRef, text, outputPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--voice", voiceRef, "--text", text, "--output", outputPath)
	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("tts command: %w: %s", err, msg)
		}
		return fmt.Errorf("tts command: %w", err)
	}
	return nil
}
