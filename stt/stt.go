// Package stt turns WAV chunk files into text by driving a local
// whisper.cpp executable as a subprocess.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingInput is returned when the chunk file, the whisper binary or
// the model file does not exist; the subprocess is never spawned.
var ErrMissingInput = errors.New("transcription input missing")

// ErrTimeout is returned when the subprocess exceeds its time budget.
var ErrTimeout = errors.New("transcription timed out")

// Transcriber converts one chunk file at a time into clean text.
// Implementations are invoked strictly sequentially by the queue.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
	// Abort terminates any in-flight subprocess. Idempotent; a no-op
	// when nothing is running.
	Abort()
}

// ExitError reports a recognizer subprocess that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("whisper exited with code %d: %s", e.Code, e.Stderr)
}
