package recording

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/vedantwpatil/FormFrame/internal/metrics"
)

// Blob is an assembled recording.
type Blob struct {
	Data     []byte
	MimeType string
}

func (b Blob) Size() int { return len(b.Data) }

// session is the state of one recording: chunks in emission order and,
// once the encoder finished, the assembled blob or the failure.
type session struct {
	mimeType string

	mu     sync.Mutex
	chunks [][]byte
	size   int
	closed bool
	blob   *Blob
	err    error

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(mimeType string) *session {
	return &session{mimeType: mimeType, done: make(chan struct{})}
}

// append records a non-empty chunk. Chunks arriving after assembly are dropped.
func (s *session) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
	metrics.RecorderChunks.Inc()
	metrics.RecorderBytes.Add(float64(len(chunk)))
}

// assemble resolves the session exactly once.
func (s *session) assemble(encErr error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		switch {
		case encErr != nil:
			s.err = fmt.Errorf("%w: %w", ErrEncoder, encErr)
		case len(s.chunks) == 0 || s.size == 0:
			s.err = ErrEmptyRecording
		default:
			data := bytes.Join(s.chunks, nil)
			s.blob = &Blob{Data: data, MimeType: ContainerType(s.mimeType)}
			if s.mimeType != "" {
				s.blob.MimeType = s.mimeType
			}
		}
		s.mu.Unlock()
		close(s.done)
	})
}

// result reports the outcome without blocking; ok is false while encoding.
func (s *session) result() (blob *Blob, ok bool, err error) {
	select {
	case <-s.done:
	default:
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob, true, s.err
}

func (s *session) stats() (chunks, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), s.size
}
