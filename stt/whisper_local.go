package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default subprocess limits.
const (
	DefaultTimeout = 30 * time.Second
	DefaultThreads = 4

	// abortGrace is how long Abort waits after the graceful signal
	// before escalating to a kill.
	abortGrace = 2 * time.Second
)

// runState tracks one subprocess invocation. The timeout path and the
// natural-exit path race; whichever transitions first decides the result.
type runState int

const (
	runIdle runState = iota
	runActive
	runTimedOut
	runExited
)

// WhisperLocalConfig configures the whisper.cpp invocation.
type WhisperLocalConfig struct {
	BinPath   string
	ModelPath string
	Language  string // whisper language code, "auto" to auto-detect
	Threads   int
	Timeout   time.Duration
}

// WhisperLocal implements Transcriber over the whisper.cpp CLI. At most
// one subprocess runs at a time; the pipeline's queue guarantees
// Transcribe is never called concurrently.
type WhisperLocal struct {
	binPath   string
	modelPath string
	language  string
	threads   int
	timeout   time.Duration

	mu     sync.Mutex
	state  runState
	proc   *os.Process
	exited chan struct{}
}

// NewWhisperLocal creates a worker for the given binary and model.
// Existence of the files is checked per call, not here, so the worker can
// be constructed before the model finishes installing.
func NewWhisperLocal(cfg WhisperLocalConfig) *WhisperLocal {
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &WhisperLocal{
		binPath:   cfg.BinPath,
		modelPath: cfg.ModelPath,
		language:  cfg.Language,
		threads:   cfg.Threads,
		timeout:   cfg.Timeout,
	}
}

// Transcribe runs whisper.cpp over wavPath and returns the cleaned text.
// A missing chunk, binary or model fails immediately without spawning.
func (w *WhisperLocal) Transcribe(ctx context.Context, wavPath string) (string, error) {
	for _, in := range []struct{ name, path string }{
		{"chunk file", wavPath},
		{"binary", w.binPath},
		{"model file", w.modelPath},
	} {
		if _, err := os.Stat(in.path); err != nil {
			return "", fmt.Errorf("%w: %s %q", ErrMissingInput, in.name, in.path)
		}
	}

	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", w.language,
		"-t", strconv.Itoa(w.threads),
		"--no-fallback",
		"--no-timestamps",
	}

	cmd := exec.Command(w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("spawn whisper: %w", err)
	}

	exited := make(chan struct{})
	w.mu.Lock()
	w.state = runActive
	w.proc = cmd.Process
	w.exited = exited
	w.mu.Unlock()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		close(exited)
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		return w.finish(err, stdout.String(), stderr.String())

	case <-timer.C:
		w.mu.Lock()
		w.state = runTimedOut
		w.mu.Unlock()
		slog.Warn("whisper timed out", "path", wavPath, "timeout", w.timeout)
		w.Abort()
		return "", fmt.Errorf("%w after %s", ErrTimeout, w.timeout)

	case <-ctx.Done():
		w.mu.Lock()
		w.state = runTimedOut
		w.mu.Unlock()
		w.Abort()
		return "", ctx.Err()
	}
}

// finish records the natural exit and turns the captured streams into a
// result.
func (w *WhisperLocal) finish(waitErr error, stdout, stderr string) (string, error) {
	w.mu.Lock()
	w.state = runExited
	w.proc = nil
	w.exited = nil
	w.mu.Unlock()

	if waitErr != nil {
		code := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return "", &ExitError{Code: code, Stderr: strings.TrimSpace(stderr)}
	}
	return cleanOutput(stdout), nil
}

// Abort sends a graceful termination signal to the running subprocess and
// kills it if it has not exited within the grace period. Safe to call when
// nothing is running.
func (w *WhisperLocal) Abort() {
	w.mu.Lock()
	proc := w.proc
	exited := w.exited
	w.mu.Unlock()

	if proc == nil {
		return
	}

	// Signal errors are not actionable here: the process may already be
	// gone, or the platform may not deliver interrupts, in which case the
	// kill below still applies.
	_ = proc.Signal(os.Interrupt)

	select {
	case <-exited:
		return
	case <-time.After(abortGrace):
	}

	if err := proc.Kill(); err != nil {
		slog.Error("kill whisper subprocess", "error", err)
	}
}

var (
	// Inline whisper time-range markers, e.g. [00:00:00.000 --> 00:00:06.000].
	rangeMarkerRe = regexp.MustCompile(`\[[0-9:.,]+\s*-->\s*[0-9:.,]+\]`)
	// Non-speech artifacts whisper emits as bracketed or parenthesized
	// uppercase tags, e.g. [BLANK_AUDIO], [MUSIC], (SPEECH).
	artifactRe   = regexp.MustCompile(`[\[(][ _A-Z]+[\])]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// diagnosticPrefixes mark whisper.cpp banner and progress lines that leak
// into stdout on some builds.
var diagnosticPrefixes = []string{
	"whisper_", "ggml_", "main:", "system_info:", "log_mel", "operator():",
}

// cleanOutput strips diagnostics and timing markers from raw whisper
// stdout, leaving only spoken text joined with single spaces.
func cleanOutput(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = rangeMarkerRe.ReplaceAllString(line, "")
		line = artifactRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || isDiagnostic(line) {
			continue
		}
		parts = append(parts, line)
	}
	return whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " ")
}

func isDiagnostic(line string) bool {
	for _, p := range diagnosticPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
