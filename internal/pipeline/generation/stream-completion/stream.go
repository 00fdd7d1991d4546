// internal/pipeline/generation/stream-completion/stream.go
package streamcompletion

import (
	"context"
	"sync"
)

// Stream delivers reply fragments as they arrive and a single terminal Result.
type Stream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	result Result
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		chunks: make(chan string, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Chunks yields reply fragments in order. It is closed when generation ends.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Done is closed once the Result is available.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Result drains any unread fragments and blocks until generation ends.
func (s *Stream) Result() Result {
	for range s.chunks {
	}
	<-s.done
	return s.result
}

// Cancel stops generation. Output received so far is still accounted.
func (s *Stream) Cancel() {
	s.cancel()
}

func (s *Stream) send(ctx context.Context, fragment string) bool {
	select {
	case s.chunks <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish(r Result) {
	s.once.Do(func() {
		s.result = r
		close(s.chunks)
		close(s.done)
		s.cancel()
	})
}
