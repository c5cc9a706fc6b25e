package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/mattn/go-shellwords"
)

// execRecognizer keeps a transcription command running for the whole
// session. Each stdout line is one utterance, either plain text or a JSON
// object with a "text" field.
type execRecognizer struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	lines   chan string
	stderr  *bytes.Buffer
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
	exitErr error
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Partial    bool    `json:"partial"`
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	cmdArgs := append([]string{}, args[1:]...)
	if cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", cfg.ModelPath)
	}
	if cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", cfg.Language)
	}

	command := exec.Command(args[0], cmdArgs...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start stt command: %w", err)
	}

	r := &execRecognizer{
		cmd:    command,
		stdout: stdout,
		lines:  make(chan string),
		stderr: &stderr,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go r.read()
	return r, nil
}

func (r *execRecognizer) read() {
	defer close(r.exited)
	defer close(r.lines)
	scanner := bufio.NewScanner(r.stdout)
	for scanner.Scan() {
		text, ok := parseUtteranceLine(scanner.Text())
		if !ok {
			continue
		}
		select {
		case r.lines <- text:
		case <-r.done:
			_ = r.cmd.Process.Kill()
			r.exitErr = r.cmd.Wait()
			return
		}
	}
	r.exitErr = r.cmd.Wait()
}

func (r *execRecognizer) NextUtterance(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-r.lines:
		if !ok {
			<-r.exited
			return "", fmt.Errorf("%w: stt command exited (%v): %s", ErrClosed, r.exitErr, strings.TrimSpace(r.stderr.String()))
		}
		return text, nil
	}
}

func (r *execRecognizer) Close() error {
	r.once.Do(func() {
		close(r.done)
		_ = r.cmd.Process.Kill()
		// Children of the command may still hold the pipe open.
		_ = r.stdout.Close()
	})
	<-r.exited
	return nil
}

func parseUtteranceLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if strings.HasPrefix(line, "{") {
		var resp execResult
		if err := json.Unmarshal([]byte(line), &resp); err == nil {
			if resp.Partial {
				return "", false
			}
			return resp.Text, true
		}
	}
	return line, true
}
