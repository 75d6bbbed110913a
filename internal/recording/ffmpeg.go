package recording

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vedantwpatil/FormFrame/internal/log"
)

// profile is how a MIME type maps onto ffmpeg muxer and encoder names.
type profile struct {
	muxer   string
	encoder string
}

var mimeProfiles = map[string]profile{
	"video/webm;codecs=vp9": {muxer: "webm", encoder: "libvpx-vp9"},
	"video/webm;codecs=vp8": {muxer: "webm", encoder: "libvpx"},
	"video/webm":            {muxer: "webm"},
	"video/mp4":             {muxer: "mp4"},
	"":                      {muxer: "webm"},
}

// FFmpegEncoder encodes raw RGBA frames by piping them through an ffmpeg child process.
type FFmpegEncoder struct {
	BinPath string
	// WaitDelay bounds how long a killed encoder may hold its pipes open.
	WaitDelay time.Duration

	logger zerolog.Logger
	probe  func(ctx context.Context, args ...string) ([]byte, error)

	probeOnce sync.Once
	encoders  map[string]bool
	muxers    map[string]bool
	probeErr  error
}

var _ MediaEncoder = (*FFmpegEncoder)(nil)

func NewFFmpegEncoder(binPath string) *FFmpegEncoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	e := &FFmpegEncoder{
		BinPath:   binPath,
		WaitDelay: 2 * time.Second,
		logger:    log.WithComponent("ffmpeg"),
	}
	e.probe = func(ctx context.Context, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, e.BinPath, args...).Output()
	}
	return e
}

func (e *FFmpegEncoder) loadCapabilities() {
	e.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		out, err := e.probe(ctx, "-hide_banner", "-encoders")
		if err != nil {
			e.probeErr = fmt.Errorf("probe encoders: %w", err)
			e.logger.Warn().Err(e.probeErr).Msg("ffmpeg capability probe failed")
			return
		}
		e.encoders = parseCapabilities(out)

		out, err = e.probe(ctx, "-hide_banner", "-muxers")
		if err != nil {
			e.probeErr = fmt.Errorf("probe muxers: %w", err)
			e.logger.Warn().Err(e.probeErr).Msg("ffmpeg capability probe failed")
			return
		}
		e.muxers = parseCapabilities(out)
	})
}

// parseCapabilities reads the name column of `ffmpeg -encoders` or `-muxers` output.
func parseCapabilities(out []byte) map[string]bool {
	names := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	inTable := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inTable {
			inTable = strings.HasPrefix(line, "--")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

func (e *FFmpegEncoder) IsTypeSupported(mimeType string) bool {
	p, ok := mimeProfiles[NormalizeMimeType(mimeType)]
	if !ok {
		return false
	}
	e.loadCapabilities()
	if e.probeErr != nil {
		return false
	}
	return e.muxers[p.muxer] && (p.encoder == "" || e.encoders[p.encoder])
}

// buildArgs reads rawvideo from stdin and writes a streamable container to stdout.
func buildArgs(opts EncodeOptions) ([]string, error) {
	p, ok := mimeProfiles[NormalizeMimeType(opts.MimeType)]
	if !ok {
		return nil, fmt.Errorf("unsupported mime type %q", opts.MimeType)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-use_wallclock_as_timestamps", "1",
		"-i", "pipe:0",
		"-r", strconv.Itoa(opts.FPS),
	}
	if p.encoder != "" {
		args = append(args, "-c:v", p.encoder)
	}
	if opts.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(opts.Bitrate))
	}
	args = append(args, "-pix_fmt", "yuv420p")
	if strings.HasPrefix(p.encoder, "libvpx") {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}
	if p.muxer == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "-f", p.muxer, "pipe:1"), nil
}

func (e *FFmpegEncoder) Start(ctx context.Context, track *VideoTrack, opts EncodeOptions, onChunk ChunkFunc) (Encoding, error) {
	args, err := buildArgs(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultOptions().Timeslice
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, e.BinPath, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.WaitDelay

	tail := newStderrTail(20)
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	e.logger.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("ffmpeg started")

	enc := &ffmpegEncoding{
		cmd:    cmd,
		cancel: cancel,
		tail:   tail,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go enc.run(track, stdin, stdout, opts.Timeslice, onChunk)
	return enc, nil
}

type ffmpegEncoding struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	tail   *stderrTail

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func (f *ffmpegEncoding) run(track *VideoTrack, stdin io.WriteCloser, stdout io.Reader, timeslice time.Duration, onChunk ChunkFunc) {
	defer close(f.done)
	defer f.cancel()

	var (
		mu      sync.Mutex
		pending bytes.Buffer
	)
	flush := func() {
		mu.Lock()
		if pending.Len() == 0 {
			mu.Unlock()
			return
		}
		chunk := bytes.Clone(pending.Bytes())
		pending.Reset()
		mu.Unlock()
		onChunk(chunk)
	}

	readDone := make(chan struct{})
	var g errgroup.Group

	g.Go(func() error {
		defer stdin.Close()
		frames := track.Frames()
		for {
			select {
			case <-f.stop:
				return nil
			case frame, ok := <-frames:
				if !ok {
					return nil
				}
				if _, err := stdin.Write(frame); err != nil {
					return fmt.Errorf("write frame: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		defer close(readDone)
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				mu.Lock()
				pending.Write(buf[:n])
				mu.Unlock()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read output: %w", err)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(timeslice)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				flush()
			case <-readDone:
				flush()
				return nil
			}
		}
	})

	groupErr := g.Wait()
	waitErr := f.cmd.Wait()
	switch {
	case waitErr != nil:
		if msg := f.tail.String(); msg != "" {
			f.err = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, msg)
		} else {
			f.err = fmt.Errorf("ffmpeg exited: %w", waitErr)
		}
	case groupErr != nil:
		f.err = groupErr
	}
}

func (f *ffmpegEncoding) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *ffmpegEncoding) Kill() {
	f.Stop()
	f.cancel()
}

func (f *ffmpegEncoding) Done() <-chan struct{} { return f.done }

func (f *ffmpegEncoding) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}
