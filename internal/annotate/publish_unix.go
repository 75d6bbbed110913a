//go:build !windows

package annotate

import (
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

func publishFile(logger zerolog.Logger, path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending recording file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending recording file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write recording data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
