package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/cl33/RealTimeTTS/internal/llm"
)

// chunkStream runs one generation on its own goroutine. Chunks are buffered
// without bound, so the generator never waits on synthesis and its deadline
// covers generation alone.
type chunkStream struct {
	mu       sync.Mutex
	chunks   []string
	done     bool
	err      error
	notify   chan struct{}
	finished chan struct{}
}

func startStream(ctx context.Context, gen llm.Generator, req llm.Request) *chunkStream {
	s := &chunkStream{
		notify:   make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
	go func() {
		defer close(s.finished)
		err := s.generate(ctx, gen, req)
		s.mu.Lock()
		s.done = true
		s.err = err
		s.mu.Unlock()
		s.signal()
	}()
	return s
}

func (s *chunkStream) generate(ctx context.Context, gen llm.Generator, req llm.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen.Generate(ctx, req, func(chunk llm.Chunk) error {
		if chunk.Content == "" {
			return nil
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk.Content)
		s.mu.Unlock()
		s.signal()
		return nil
	})
}

func (s *chunkStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next blocks until chunks are buffered or the generation has ended. Once the
// buffer is empty after the end, ok is false and err is the generation result.
func (s *chunkStream) next(ctx context.Context) (chunks []string, ok bool, err error) {
	for {
		s.mu.Lock()
		chunks, s.chunks = s.chunks, nil
		done, genErr := s.done, s.err
		s.mu.Unlock()
		if len(chunks) > 0 {
			return chunks, true, nil
		}
		if done {
			return nil, false, genErr
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-s.notify:
		}
	}
}

// wait returns once the generator goroutine has exited.
func (s *chunkStream) wait() {
	<-s.finished
}
