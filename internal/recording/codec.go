package recording

import (
	"context"
	"strings"
	"time"
)

// DefaultMimeTypes is the negotiation priority list.
var DefaultMimeTypes = []string{
	"video/webm;codecs=vp9",
	"video/webm;codecs=vp8",
	"video/webm",
	"video/mp4",
}

// EncodeOptions configures one encoding.
type EncodeOptions struct {
	// MimeType is empty when no candidate was supported; the encoder picks a codec.
	MimeType  string
	Width     int
	Height    int
	FPS       int
	Bitrate   int
	Timeslice time.Duration
}

// ChunkFunc receives encoded chunks in emission order.
type ChunkFunc func(chunk []byte)

// Encoding is one running encode.
type Encoding interface {
	// Stop finishes the container and flushes the remaining chunks.
	Stop()
	// Kill aborts without flushing.
	Kill()
	// Done is closed after the last chunk has been delivered.
	Done() <-chan struct{}
	// Err is the encoder-reported failure; valid after Done.
	Err() error
}

// MediaEncoder is the host capability that turns a video track into encoded chunks.
type MediaEncoder interface {
	IsTypeSupported(mimeType string) bool
	Start(ctx context.Context, track *VideoTrack, opts EncodeOptions, onChunk ChunkFunc) (Encoding, error)
}

// NegotiateMimeType returns the first supported candidate, or "" when none is.
func NegotiateMimeType(enc MediaEncoder, candidates []string) string {
	for _, c := range candidates {
		if enc.IsTypeSupported(c) {
			return c
		}
	}
	return ""
}

// NormalizeMimeType lowercases and strips whitespace so "video/webm; codecs=vp9" matches.
func NormalizeMimeType(mime string) string {
	return strings.ToLower(strings.Join(strings.Fields(mime), ""))
}

// Extension maps a MIME type to a file extension. The unspecified-codec
// fallback is recorded as WebM.
func Extension(mime string) string {
	if strings.HasPrefix(NormalizeMimeType(mime), "video/mp4") {
		return ".mp4"
	}
	return ".webm"
}

// ContainerType is the MIME type without codec parameters.
func ContainerType(mime string) string {
	base, _, _ := strings.Cut(NormalizeMimeType(mime), ";")
	if base == "" {
		return "video/webm"
	}
	return base
}
