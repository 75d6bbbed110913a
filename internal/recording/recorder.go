// Package recording captures a drawing surface into an encoded video blob.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/log"
	"github.com/vedantwpatil/FormFrame/internal/metrics"
)

var (
	// ErrNoVideoTrack is returned when the capture stream exposes no video track.
	ErrNoVideoTrack = errors.New("capture stream has no video track")
	// ErrEncoder wraps failures reported by the media encoder.
	ErrEncoder = errors.New("media encoder failed")
	// ErrEmptyRecording is returned when a session produced no bytes.
	ErrEmptyRecording = errors.New("recording is empty")
	// ErrNotRecording is returned by Await when no session exists.
	ErrNotRecording = errors.New("no recording session")
)

// Recorder is the capability the annotation pipeline records through.
type Recorder interface {
	// StartRecording resets any prior session and begins capturing surface.
	// It returns once the encoder is running, without waiting for data.
	StartRecording(ctx context.Context, surface FrameSurface) error
	// StopRecording ends the active session. It is a no-op when idle.
	StopRecording()
	// RecordedURL reports the blob URL once a non-empty blob is assembled.
	RecordedURL() (string, bool)
	// Await blocks until the current session is assembled or fails.
	Await(ctx context.Context) (Blob, error)
	// Reset revokes the URL and discards all session state.
	Reset()
	// Cancel aborts an active session and discards its output.
	Cancel()
}

// Options tunes a StreamRecorder.
type Options struct {
	FPS       int
	Bitrate   int
	Timeslice time.Duration
	MimeTypes []string
}

func DefaultOptions() Options {
	return Options{
		FPS:       60,
		Bitrate:   2_500_000,
		Timeslice: 250 * time.Millisecond,
		MimeTypes: DefaultMimeTypes,
	}
}

// StreamRecorder records a surface through a MediaEncoder. At most one
// session exists at a time.
type StreamRecorder struct {
	encoder MediaEncoder
	urls    *ObjectURLs
	opts    Options
	logger  zerolog.Logger

	mu        sync.Mutex
	session   *session
	stream    *MediaStream
	encoding  Encoding
	recording bool
	url       string
	watchDone chan struct{}
}

var _ Recorder = (*StreamRecorder)(nil)

func NewStreamRecorder(encoder MediaEncoder, urls *ObjectURLs, opts Options) *StreamRecorder {
	defaults := DefaultOptions()
	if opts.FPS <= 0 {
		opts.FPS = defaults.FPS
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = defaults.Bitrate
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = defaults.Timeslice
	}
	if len(opts.MimeTypes) == 0 {
		opts.MimeTypes = defaults.MimeTypes
	}
	if urls == nil {
		urls = NewObjectURLs()
	}
	return &StreamRecorder{
		encoder: encoder,
		urls:    urls,
		opts:    opts,
		logger:  log.WithComponent("recorder"),
	}
}

func (r *StreamRecorder) StartRecording(ctx context.Context, surface FrameSurface) error {
	r.Reset()

	mime := NegotiateMimeType(r.encoder, r.opts.MimeTypes)
	stream, err := CaptureStream(surface, r.opts.FPS)
	if err != nil {
		return err
	}
	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		stream.Stop()
		metrics.RecorderSessions.WithLabelValues(metrics.MimeLabel(mime), "no_track").Inc()
		return ErrNoVideoTrack
	}

	sess := newSession(mime)
	b := surface.Bounds()
	enc, err := r.encoder.Start(ctx, tracks[0], EncodeOptions{
		MimeType:  mime,
		Width:     b.Dx(),
		Height:    b.Dy(),
		FPS:       r.opts.FPS,
		Bitrate:   r.opts.Bitrate,
		Timeslice: r.opts.Timeslice,
	}, sess.append)
	if err != nil {
		stream.Stop()
		metrics.RecorderSessions.WithLabelValues(metrics.MimeLabel(mime), "start_failed").Inc()
		return fmt.Errorf("%w: %w", ErrEncoder, err)
	}

	watchDone := make(chan struct{})
	r.mu.Lock()
	r.session = sess
	r.stream = stream
	r.encoding = enc
	r.recording = true
	r.watchDone = watchDone
	r.mu.Unlock()

	go r.watch(sess, stream, enc, watchDone)

	r.logger.Info().
		Str(log.FieldMimeType, metrics.MimeLabel(mime)).
		Int(log.FieldWidth, b.Dx()).
		Int(log.FieldHeight, b.Dy()).
		Int(log.FieldFPS, r.opts.FPS).
		Msg("recording started")
	return nil
}

// watch assembles the session once the encoder has flushed its last chunk.
func (r *StreamRecorder) watch(sess *session, stream *MediaStream, enc Encoding, done chan struct{}) {
	defer close(done)
	<-enc.Done()
	stream.Stop()
	sess.assemble(enc.Err())

	r.mu.Lock()
	if r.session == sess {
		r.recording = false
	}
	r.mu.Unlock()

	chunks, size := sess.stats()
	_, _, err := sess.result()
	outcome := "ok"
	switch {
	case errors.Is(err, ErrEmptyRecording):
		outcome = "empty"
	case err != nil:
		outcome = "failed"
	}
	metrics.RecorderSessions.WithLabelValues(metrics.MimeLabel(sess.mimeType), outcome).Inc()

	evt := r.logger.Info()
	if err != nil {
		evt = r.logger.Warn().Err(err)
	}
	evt.Int(log.FieldChunks, chunks).Int(log.FieldBytes, size).Msg("recording assembled")
}

func (r *StreamRecorder) StopRecording() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	enc, stream := r.encoding, r.stream
	r.mu.Unlock()

	enc.Stop()
	stream.Stop()
	r.logger.Debug().Msg("recording stop requested")
}

// Recording reports whether a session is capturing.
func (r *StreamRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *StreamRecorder) RecordedURL() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return "", false
	}
	blob, ok, err := r.session.result()
	if !ok || err != nil || blob == nil || blob.Size() == 0 {
		return "", false
	}
	if r.url == "" {
		r.url = r.urls.Create(*blob)
	}
	return r.url, true
}

func (r *StreamRecorder) Await(ctx context.Context) (Blob, error) {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()
	if sess == nil {
		return Blob{}, ErrNotRecording
	}
	select {
	case <-sess.done:
	case <-ctx.Done():
		return Blob{}, ctx.Err()
	}
	blob, _, err := sess.result()
	if err != nil {
		return Blob{}, err
	}
	return *blob, nil
}

func (r *StreamRecorder) Reset() {
	r.mu.Lock()
	enc, stream, url, watchDone := r.encoding, r.stream, r.url, r.watchDone
	r.session = nil
	r.stream = nil
	r.encoding = nil
	r.recording = false
	r.url = ""
	r.watchDone = nil
	r.mu.Unlock()

	if enc != nil {
		enc.Kill()
	}
	if stream != nil {
		stream.Stop()
	}
	if watchDone != nil {
		<-watchDone
	}
	if url != "" {
		r.urls.Revoke(url)
	}
}

func (r *StreamRecorder) Cancel() {
	r.mu.Lock()
	active := r.recording
	r.mu.Unlock()
	r.Reset()
	if active {
		r.logger.Info().Msg("recording cancelled")
	}
}

// URLs exposes the registry recorded URLs resolve against.
func (r *StreamRecorder) URLs() *ObjectURLs {
	return r.urls
}
