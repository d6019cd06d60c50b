package app

import (
	"errors"
	"testing"
	"time"

	"github.com/loopnote/loopnote/internal/types"
)

type stubPipeline struct {
	startErr error
	started  int
	stopped  int
	cleaned  int
	onText   func(types.TaggedTranscription)
}

func (p *stubPipeline) Start(onText func(types.TaggedTranscription)) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started++
	p.onText = onText
	return nil
}

func (p *stubPipeline) Stop()    { p.stopped++ }
func (p *stubPipeline) Cleanup() { p.cleaned++ }

type stubSaver struct {
	saveErr error
	saved   []types.Note
}

func (s *stubSaver) Save(n types.Note) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, n)
	return "/notes/fake.md", nil
}

func entry(index int, text string) types.TaggedTranscription {
	end := time.Date(2026, 8, 29, 9, 0, 6*(index+1), 0, time.Local)
	return types.TaggedTranscription{
		Text:       text,
		ChunkIndex: index,
		StartTime:  end.Add(-6 * time.Second),
		EndTime:    end,
	}
}

func TestDispatchTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   State
	}{
		{"start_from_idle", []Event{EventStart}, StateCapturing},
		{"stop_from_idle_ignored", []Event{EventStop}, StateIdle},
		{"save_from_idle_ignored", []Event{EventSave}, StateIdle},
		{"discard_from_idle_ignored", []Event{EventDiscard}, StateIdle},
		{"start_stop", []Event{EventStart, EventStop}, StateReview},
		{"start_while_capturing_ignored", []Event{EventStart, EventStart}, StateCapturing},
		{"stop_save", []Event{EventStart, EventStop, EventSave}, StateIdle},
		{"stop_discard", []Event{EventStart, EventStop, EventDiscard}, StateIdle},
		{"stop_twice_ignored", []Event{EventStart, EventStop, EventStop}, StateReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&stubPipeline{}, &stubSaver{}, nil)
			for _, ev := range tt.events {
				if err := a.Dispatch(ev); err != nil {
					t.Fatalf("Dispatch(%v): %v", ev, err)
				}
			}
			if got := a.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartStopSaveClearsBuffers(t *testing.T) {
	pipe := &stubPipeline{}
	saver := &stubSaver{}
	a := New(pipe, saver, nil)

	if err := a.Dispatch(EventStart); err != nil {
		t.Fatalf("START: %v", err)
	}
	pipe.onText(entry(0, "we agreed to keep the weekly sync"))
	pipe.onText(entry(1, "someone needs to write the release notes"))

	if err := a.Dispatch(EventStop); err != nil {
		t.Fatalf("STOP: %v", err)
	}
	if pipe.stopped != 1 || pipe.cleaned != 1 {
		t.Errorf("pipeline stopped %d cleaned %d, want 1/1", pipe.stopped, pipe.cleaned)
	}
	if note := a.Note(); note.Empty() {
		t.Error("STOP did not distill a note")
	}

	if err := a.Dispatch(EventSave); err != nil {
		t.Fatalf("SAVE: %v", err)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("saved %d notes, want 1", len(saver.saved))
	}
	if got := a.State(); got != StateIdle {
		t.Errorf("state = %v, want IDLE", got)
	}
	if len(a.Transcript()) != 0 {
		t.Error("transcript not cleared after SAVE")
	}
	if !a.Note().Empty() {
		t.Error("note not cleared after SAVE")
	}
}

func TestStartClearsPreviousSession(t *testing.T) {
	pipe := &stubPipeline{}
	a := New(pipe, &stubSaver{}, nil)

	a.Dispatch(EventStart)
	pipe.onText(entry(0, "first session content worth keeping around"))
	a.Dispatch(EventStop)
	a.Dispatch(EventDiscard)

	a.Dispatch(EventStart)
	if len(a.Transcript()) != 0 {
		t.Error("new session started with stale transcript")
	}
	if !a.Note().Empty() {
		t.Error("new session started with stale note")
	}
}

func TestDeviceErrorKeepsIdle(t *testing.T) {
	wantErr := errors.New("no default output device")
	a := New(&stubPipeline{startErr: wantErr}, &stubSaver{}, nil)

	if err := a.Dispatch(EventStart); !errors.Is(err, wantErr) {
		t.Fatalf("expected device error, got %v", err)
	}
	if got := a.State(); got != StateIdle {
		t.Errorf("state = %v, want IDLE after failed start", got)
	}
}

func TestSaveFailureStaysInReview(t *testing.T) {
	pipe := &stubPipeline{}
	saver := &stubSaver{saveErr: errors.New("disk full")}
	a := New(pipe, saver, nil)

	a.Dispatch(EventStart)
	pipe.onText(entry(0, "content that must survive a failed save"))
	a.Dispatch(EventStop)

	if err := a.Dispatch(EventSave); err == nil {
		t.Fatal("expected save error")
	}
	if got := a.State(); got != StateReview {
		t.Errorf("state = %v, want REVIEW after failed save", got)
	}
	if a.Note().Empty() {
		t.Error("note lost after failed save")
	}
}
