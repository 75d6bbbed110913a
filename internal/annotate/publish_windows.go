//go:build windows

package annotate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// publishFile writes to a temp file beside path and renames it into place.
// The rename is not durable across power loss on Windows.
func publishFile(logger zerolog.Logger, path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create pending recording file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logger.Debug().Err(err).Msg("cleanup pending recording file")
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write recording data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync recording data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pending recording file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
