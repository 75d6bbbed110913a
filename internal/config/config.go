package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Recording RecordingConfig `yaml:"recording"`
	Render    RenderConfig    `yaml:"render"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RecordingConfig struct {
	FPS        int           `yaml:"fps"`
	Bitrate    int           `yaml:"bitrate"`
	Timeslice  time.Duration `yaml:"timeslice"`
	FFmpegPath string        `yaml:"ffmpeg_path"`
	// MimeTypes is probed in order; the first supported type wins.
	MimeTypes []string `yaml:"mime_types"`
	OutputDir string   `yaml:"output_dir"`
}

type RenderConfig struct {
	FallbackWidth   int           `yaml:"fallback_width"`
	FallbackHeight  int           `yaml:"fallback_height"`
	CaptionWindow   time.Duration `yaml:"caption_window"`
	MarkerTolerance time.Duration `yaml:"marker_tolerance"`
	MaxCaptionLines int           `yaml:"max_caption_lines"`
}

type PipelineConfig struct {
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`
	// Realtime paces rendering at the source frame rate.
	Realtime      bool `yaml:"realtime"`
	FallbackStill bool `yaml:"fallback_still"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// InputDir is the only directory POST /runs may read videos from.
	InputDir string `yaml:"input_dir"`
	// RunsPerMinute limits POST /runs per client IP.
	RunsPerMinute int `yaml:"runs_per_minute"`
}

func NewConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Recording: RecordingConfig{
			FPS:        60,
			Bitrate:    2_500_000,
			Timeslice:  250 * time.Millisecond,
			FFmpegPath: "ffmpeg",
			MimeTypes: []string{
				"video/webm;codecs=vp9",
				"video/webm;codecs=vp8",
				"video/webm",
				"video/mp4",
			},
			OutputDir: "output",
		},
		Render: RenderConfig{
			FallbackWidth:   640,
			FallbackHeight:  480,
			CaptionWindow:   4 * time.Second,
			MarkerTolerance: 500 * time.Millisecond,
			MaxCaptionLines: 3,
		},
		Pipeline: PipelineConfig{
			MetadataTimeout: 10 * time.Second,
			FinalizeTimeout: 10 * time.Second,
			Realtime:        true,
			FallbackStill:   true,
		},
		History: HistoryConfig{
			Path: "output/formframe.db",
		},
		Server: ServerConfig{
			Listen:        "127.0.0.1:8090",
			InputDir:      "input",
			RunsPerMinute: 10,
		},
	}
}

// Validate reports the first setting that cannot drive a run.
func (c *Config) Validate() error {
	switch {
	case c.Recording.FPS <= 0:
		return fmt.Errorf("%w: recording.fps must be positive, got %d", ErrInvalid, c.Recording.FPS)
	case c.Recording.Bitrate <= 0:
		return fmt.Errorf("%w: recording.bitrate must be positive, got %d", ErrInvalid, c.Recording.Bitrate)
	case c.Recording.Timeslice <= 0:
		return fmt.Errorf("%w: recording.timeslice must be positive", ErrInvalid)
	case c.Recording.FFmpegPath == "":
		return fmt.Errorf("%w: recording.ffmpeg_path is empty", ErrInvalid)
	case c.Recording.OutputDir == "":
		return fmt.Errorf("%w: recording.output_dir is empty", ErrInvalid)
	case c.Render.FallbackWidth <= 0 || c.Render.FallbackHeight <= 0:
		return fmt.Errorf("%w: render fallback size %dx%d", ErrInvalid, c.Render.FallbackWidth, c.Render.FallbackHeight)
	case c.Render.CaptionWindow <= 0:
		return fmt.Errorf("%w: render.caption_window must be positive", ErrInvalid)
	case c.Render.MarkerTolerance < 0:
		return fmt.Errorf("%w: render.marker_tolerance must not be negative", ErrInvalid)
	case c.Render.MaxCaptionLines <= 0:
		return fmt.Errorf("%w: render.max_caption_lines must be positive", ErrInvalid)
	case c.Pipeline.MetadataTimeout <= 0:
		return fmt.Errorf("%w: pipeline.metadata_timeout must be positive", ErrInvalid)
	case c.Pipeline.FinalizeTimeout <= 0:
		return fmt.Errorf("%w: pipeline.finalize_timeout must be positive", ErrInvalid)
	case c.Server.InputDir == "":
		return fmt.Errorf("%w: server.input_dir is empty", ErrInvalid)
	case c.Server.RunsPerMinute < 0:
		return fmt.Errorf("%w: server.runs_per_minute must not be negative", ErrInvalid)
	}
	return nil
}
