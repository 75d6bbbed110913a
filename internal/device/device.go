// Package device drives the spoken and haptic rep cues.
package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/log"
)

// Speaker announces short phrases.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// HapticDevice emits a pulse of roughly d.
type HapticDevice interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// Nop satisfies both Speaker and HapticDevice and does nothing.
type Nop struct{}

func (Nop) Say(context.Context, string) error            { return nil }
func (Nop) Vibrate(context.Context, time.Duration) error { return nil }

// CommandSpeaker shells out to the platform speech synthesizer.
type CommandSpeaker struct {
	name   string
	args   func(text string) []string
	logger zerolog.Logger
}

// NewCommandSpeaker picks the synthesizer for goos: say on darwin, espeak on
// linux and System.Speech through PowerShell on windows.
func NewCommandSpeaker(goos string) (*CommandSpeaker, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	s := &CommandSpeaker{logger: log.WithComponent("speaker")}
	switch goos {
	case "darwin":
		s.name = "say"
		s.args = func(text string) []string { return []string{text} }
	case "linux":
		s.name = "espeak"
		s.args = func(text string) []string { return []string{text} }
	case "windows":
		s.name = "powershell"
		s.args = func(text string) []string {
			quoted := strings.ReplaceAll(text, "'", "''")
			return []string{
				"-NoProfile", "-Command",
				"Add-Type -AssemblyName System.Speech; " +
					"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak('" + quoted + "')",
			}
		}
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
	return s, nil
}

// Command reports the program and arguments used to speak text.
func (s *CommandSpeaker) Command(text string) (string, []string) {
	return s.name, s.args(text)
}

func (s *CommandSpeaker) Say(ctx context.Context, text string) error {
	out, err := exec.CommandContext(ctx, s.name, s.args(text)...).CombinedOutput()
	if err != nil {
		s.logger.Debug().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("speech failed")
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// Bell rings the terminal bell as a stand-in for a vibration motor.
type Bell struct {
	mu     sync.Mutex
	out    io.Writer
	logger zerolog.Logger
}

func NewBell(out io.Writer) *Bell {
	if out == nil {
		out = os.Stderr
	}
	return &Bell{out: out, logger: log.WithComponent("haptic")}
}

func (b *Bell) Vibrate(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	_, err := io.WriteString(b.out, "\a")
	b.mu.Unlock()
	b.logger.Debug().Dur("pulse", d).Msg("haptic pulse")
	return err
}
