package annotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/recording"
)

// SanitizeLabel turns an exercise label into a file name stem.
func SanitizeLabel(label string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.TrimSpace(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSep = false
		case r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	stem := strings.TrimRight(b.String(), "_")
	if stem == "" {
		return "workout"
	}
	return stem
}

// RecordingName is the suggested file name for an annotated recording.
func RecordingName(label, mimeType string) string {
	return SanitizeLabel(label) + "_analyzed" + recording.Extension(mimeType)
}

// StillName is the file name of the fallback still frame.
func StillName(label string) string {
	return SanitizeLabel(label) + "_frame.png"
}

// writeRecording publishes data at dir/name; readers never see a partial file.
func writeRecording(logger zerolog.Logger, dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := publishFile(logger, path, data); err != nil {
		return "", err
	}
	return path, nil
}
