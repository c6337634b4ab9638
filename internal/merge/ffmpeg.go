// Package merge concatenates a day's clips into one file with ffmpeg.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultFFmpegPath = "ffmpeg"
	defaultTimeout    = 300 * time.Second
	maxStderr         = 4096
)

// ExitError describes a failed ffmpeg run.
type ExitError struct {
	// Code is the process exit code, or -1 when it did not exit normally.
	Code     int
	TimedOut bool
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return "ffmpeg timed out"
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.Code, e.Stderr)
}

// Runner runs one concat pass from manifest into output.
type Runner interface {
	Run(ctx context.Context, manifest, output string) error
}

// FFmpeg runs the ffmpeg binary in concat demuxer mode.
type FFmpeg struct {
	// Path is the ffmpeg executable. Defaults to "ffmpeg".
	Path string
	// Timeout bounds a single run. Defaults to 300s.
	Timeout time.Duration
}

// NewFFmpeg creates an FFmpeg runner.
func NewFFmpeg(path string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{Path: path, Timeout: timeout}
}

func (f *FFmpeg) path() string {
	if f.Path == "" {
		return defaultFFmpegPath
	}
	return f.Path
}

// Args returns the ffmpeg arguments for a stream-copy concat.
func Args(manifest, output string) []string {
	return []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", output}
}

// Run executes ffmpeg, killing it when the timeout elapses.
func (f *FFmpeg) Run(ctx context.Context, manifest, output string) error {
	timeout := f.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, f.path(), Args(manifest, output)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Orphaned children may hold stderr open after ffmpeg is killed.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return &ExitError{Code: -1, TimedOut: true, Stderr: tail(stderr.String())}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Stderr: tail(stderr.String())}
	}
	return fmt.Errorf("failed to run ffmpeg: %w", err)
}

// tail keeps the end of ffmpeg's output, where the error usually is.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}
