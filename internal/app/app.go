// Package app holds the session lifecycle: a three-state machine that
// starts and stops the capture pipeline as one unit and owns the
// accumulated transcript between sessions.
package app

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/loopnote/loopnote/internal/types"
	"github.com/loopnote/loopnote/notes"
)

// State is the lifecycle position. Exactly one instance per process.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateReview
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCapturing:
		return "CAPTURING"
	case StateReview:
		return "REVIEW"
	}
	return "UNKNOWN"
}

// Event drives a lifecycle transition. Events invalid for the current
// state are ignored, not errors.
type Event int

const (
	EventStart Event = iota
	EventStop
	EventSave
	EventDiscard
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "START"
	case EventStop:
		return "STOP"
	case EventSave:
		return "SAVE"
	case EventDiscard:
		return "DISCARD"
	}
	return "UNKNOWN"
}

// PipelineUnit is the capture/chunk/transcribe unit the lifecycle drives.
type PipelineUnit interface {
	Start(onText func(types.TaggedTranscription)) error
	Stop()
	Cleanup()
}

// Saver persists a distilled note.
type Saver interface {
	Save(types.Note) (string, error)
}

// LanguageDetector tags a transcript with its language.
type LanguageDetector interface {
	Detect(text string) string
}

// App is the lifecycle state machine. It holds no timers or goroutines
// of its own; Dispatch is driven by strictly ordered external events.
type App struct {
	pipe   PipelineUnit
	store  Saver
	detect LanguageDetector // nil disables language tagging

	mu         sync.Mutex
	state      State
	transcript []types.TaggedTranscription
	note       types.Note
}

// New creates an App in StateIdle. detect may be nil.
func New(pipe PipelineUnit, store Saver, detect LanguageDetector) *App {
	return &App{pipe: pipe, store: store, detect: detect}
}

// State returns the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Transcript returns a copy of the session's accumulated transcriptions.
func (a *App) Transcript() []types.TaggedTranscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.TaggedTranscription(nil), a.transcript...)
}

// Note returns the note distilled for review, zero before the first STOP.
func (a *App) Note() types.Note {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.note
}

// Dispatch applies one event. Invalid state/event pairs are ignored and
// return nil; a failed device start or note save returns the error with
// the state unchanged.
func (a *App) Dispatch(ev Event) error {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	switch {
	case state == StateIdle && ev == EventStart:
		return a.startSession()
	case state == StateCapturing && ev == EventStop:
		a.stopSession()
		return nil
	case state == StateReview && ev == EventSave:
		return a.saveAndReset()
	case state == StateReview && ev == EventDiscard:
		a.reset()
		return nil
	}

	slog.Debug("lifecycle event ignored", "state", state, "event", ev)
	return nil
}

// startSession clears the previous session's buffers and brings the
// pipeline up. A DeviceError leaves the machine in StateIdle.
func (a *App) startSession() error {
	a.mu.Lock()
	a.transcript = nil
	a.note = types.Note{}
	a.mu.Unlock()

	if err := a.pipe.Start(a.append); err != nil {
		return err
	}

	a.mu.Lock()
	a.state = StateCapturing
	a.mu.Unlock()
	slog.Info("capture session started")
	return nil
}

// stopSession tears the pipeline down and synchronously distills the
// accumulated transcript into the note presented for review.
func (a *App) stopSession() {
	a.pipe.Stop()
	a.pipe.Cleanup()

	a.mu.Lock()
	entries := append([]types.TaggedTranscription(nil), a.transcript...)
	a.mu.Unlock()

	language := ""
	if a.detect != nil && len(entries) > 0 {
		var lines []string
		for _, e := range entries {
			lines = append(lines, e.Text)
		}
		language = a.detect.Detect(strings.Join(lines, " "))
	}
	note := notes.Distill(entries, language)

	a.mu.Lock()
	a.note = note
	a.state = StateReview
	a.mu.Unlock()
	slog.Info("capture session stopped", "entries", len(entries), "language", language)
}

// saveAndReset persists the note, then clears both buffers. A failed
// save keeps the machine in StateReview so the note is not lost.
func (a *App) saveAndReset() error {
	a.mu.Lock()
	note := a.note
	a.mu.Unlock()

	path, err := a.store.Save(note)
	if err != nil {
		return err
	}
	slog.Info("note saved", "path", path)
	a.reset()
	return nil
}

func (a *App) reset() {
	a.mu.Lock()
	a.transcript = nil
	a.note = types.Note{}
	a.state = StateIdle
	a.mu.Unlock()
}

// append is the pipeline's transcription callback; it runs on the
// queue's drain goroutine.
func (a *App) append(tt types.TaggedTranscription) {
	a.mu.Lock()
	a.transcript = append(a.transcript, tt)
	a.mu.Unlock()
}
