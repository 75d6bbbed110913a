package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/log"
)

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	logger := log.WithComponent("config")

	cfg.Log.Level = parseString(logger, lookup, "FORMFRAME_LOG_LEVEL", cfg.Log.Level)
	cfg.Recording.FFmpegPath = parseString(logger, lookup, "FORMFRAME_FFMPEG_PATH", cfg.Recording.FFmpegPath)
	cfg.Recording.OutputDir = parseString(logger, lookup, "FORMFRAME_OUTPUT_DIR", cfg.Recording.OutputDir)
	cfg.Recording.FPS = parseInt(logger, lookup, "FORMFRAME_RECORDING_FPS", cfg.Recording.FPS)
	cfg.Recording.Bitrate = parseInt(logger, lookup, "FORMFRAME_RECORDING_BITRATE", cfg.Recording.Bitrate)
	cfg.Pipeline.MetadataTimeout = parseDuration(logger, lookup, "FORMFRAME_METADATA_TIMEOUT", cfg.Pipeline.MetadataTimeout)
	cfg.Pipeline.FinalizeTimeout = parseDuration(logger, lookup, "FORMFRAME_FINALIZE_TIMEOUT", cfg.Pipeline.FinalizeTimeout)
	cfg.Pipeline.Realtime = parseBool(logger, lookup, "FORMFRAME_REALTIME", cfg.Pipeline.Realtime)
	cfg.History.Path = parseString(logger, lookup, "FORMFRAME_HISTORY_PATH", cfg.History.Path)
	cfg.Server.Listen = parseString(logger, lookup, "FORMFRAME_LISTEN", cfg.Server.Listen)
	cfg.Server.InputDir = parseString(logger, lookup, "FORMFRAME_INPUT_DIR", cfg.Server.InputDir)
}

func parseString(logger zerolog.Logger, lookup lookupFunc, key, def string) string {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def
	}
	logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	return v
}

func parseInt(logger zerolog.Logger, lookup lookupFunc, key string, def int) int {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return i
}

func parseDuration(logger zerolog.Logger, lookup lookupFunc, key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", def).Msg("invalid duration, using default")
		return def
	}
	return d
}

func parseBool(logger zerolog.Logger, lookup lookupFunc, key string, def bool) bool {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Bool("default", def).Msg("invalid boolean, using default")
		return def
	}
	return b
}
