package pipeline

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/loopnote/loopnote/audiocapture"
)

// failingDevice refuses to open, standing in for a machine with no
// default output endpoint.
type failingDevice struct{}

func (failingDevice) Open() (audiocapture.Format, error) {
	return audiocapture.Format{}, errors.New("no default output device")
}
func (failingDevice) Start() error           { return nil }
func (failingDevice) Read() ([]int16, error) { return nil, nil }
func (failingDevice) Stop() error            { return nil }
func (failingDevice) Close() error           { return nil }

func TestPipelineDeviceErrorPreventsStart(t *testing.T) {
	engine := audiocapture.New(failingDevice{})
	w := &fakeWorker{text: "words"}
	p := New(engine, w, nil, Config{ScratchDir: t.TempDir()})

	err := p.Start(nil)
	var devErr *audiocapture.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	// Stop and Cleanup on a never-started pipeline are safe.
	p.Stop()
	p.Cleanup()
}

func TestPipelineDoubleStart(t *testing.T) {
	dev := audiocapture.NewNullDevice(16000, 1)
	engine := audiocapture.New(dev)
	w := &fakeWorker{text: "words"}
	p := New(engine, w, nil, Config{
		ScratchDir:    t.TempDir(),
		ChunkDuration: time.Hour,
	})

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		p.Stop()
		p.Cleanup()
	}()

	if err := p.Start(nil); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}

// TestPipelineEndToEnd drives three chunk windows through a null device
// where the middle window carries no audio: exactly two transcriptions
// come out, with gapless chunk indices, and the scratch dir ends empty.
func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-driven pipeline test in short mode")
	}

	dir := t.TempDir()
	dev := audiocapture.NewNullDevice(16000, 1)
	engine := audiocapture.New(dev)
	w := &fakeWorker{text: "spoken words"}
	var got textCollector

	const chunkDur = 150 * time.Millisecond
	p := New(engine, w, nil, Config{
		ScratchDir:    dir,
		ChunkDuration: chunkDur,
		MinChunkBytes: 100,
	})

	if err := p.Start(got.collect); err != nil {
		t.Fatalf("Start: %v", err)
	}

	loud := make([]int16, 1000)
	for i := range loud {
		loud[i] = int16(i % 512)
	}

	// Window 1: audio.
	dev.Feed(loud)
	time.Sleep(chunkDur + chunkDur/2)
	// Window 2: silence.
	time.Sleep(chunkDur)
	// Window 3: audio again.
	dev.Feed(loud)
	time.Sleep(chunkDur + chunkDur/2)

	p.Stop()
	p.Cleanup()

	tags := got.snapshot()
	if len(tags) != 2 {
		t.Fatalf("emitted %d transcriptions, want 2", len(tags))
	}
	for i, tag := range tags {
		if tag.ChunkIndex != i {
			t.Errorf("emission %d has chunk index %d, want %d", i, tag.ChunkIndex, i)
		}
		if tag.Text != "spoken words" {
			t.Errorf("emission %d text = %q", i, tag.Text)
		}
		if tag.TimeRange == "" {
			t.Errorf("emission %d has empty time range", i)
		}
		if !tag.StartTime.Add(chunkDur).Equal(tag.EndTime) {
			t.Errorf("emission %d range is not one chunk duration", i)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in scratch dir, want 0", len(entries))
	}
}
