// Package pipeline slices captured audio into fixed-duration WAV chunks
// and feeds them, strictly one at a time, through a speech-to-text worker.
package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Scheduler/queue defaults.
const (
	DefaultChunkDuration = 6 * time.Second
	DefaultMinChunkBytes = 4 * 1024

	// targetSampleRate is what the recognizer expects.
	targetSampleRate = 16000
)

// Chunk is one fixed-duration slice of captured audio, materialized as a
// WAV file. The file lives until the queue consumes it.
type Chunk struct {
	Path       string
	Index      int
	ProducedAt time.Time
}

// FlushSource is the capture engine surface the scheduler drives.
type FlushSource interface {
	FlushToWAV(targetRate int) []byte
}

// SchedulerConfig configures chunk slicing.
type SchedulerConfig struct {
	ScratchDir    string
	ChunkDuration time.Duration
	MinChunkBytes int
}

// Scheduler periodically flushes the capture buffer into chunk files.
// Near-silent flushes are discarded without advancing the chunk index, so
// accepted chunks form a gapless sequence.
type Scheduler struct {
	src      FlushSource
	dir      string
	interval time.Duration
	minBytes int
	emit     func(Chunk)

	index int

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that emits accepted chunks to emit.
func NewScheduler(src FlushSource, cfg SchedulerConfig, emit func(Chunk)) *Scheduler {
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.MinChunkBytes <= 0 {
		cfg.MinChunkBytes = DefaultMinChunkBytes
	}
	return &Scheduler{
		src:      src,
		dir:      cfg.ScratchDir,
		interval: cfg.ChunkDuration,
		minBytes: cfg.MinChunkBytes,
		emit:     emit,
	}
}

// Start creates the scratch directory and begins ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	s.running = true
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop halts the ticker after exactly one final flush, so trailing audio
// captured since the last tick is not lost. Blocks until the loop exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.done:
			s.tick()
			return
		}
	}
}

// tick flushes the source and materializes a chunk. An empty flush is a
// silent skip; a chunk below the byte threshold is judged near-silence and
// deleted without advancing the index.
func (s *Scheduler) tick() {
	data := s.src.FlushToWAV(targetSampleRate)
	if data == nil {
		return
	}

	path := filepath.Join(s.dir, fmt.Sprintf("chunk_%d.wav", s.index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Error("write chunk file", "path", path, "error", err)
		return
	}

	if len(data) < s.minBytes {
		if err := os.Remove(path); err != nil {
			slog.Warn("remove near-silent chunk", "path", path, "error", err)
		}
		slog.Debug("chunk discarded as near-silence", "index", s.index, "bytes", len(data))
		return
	}

	s.emit(Chunk{Path: path, Index: s.index, ProducedAt: time.Now()})
	s.index++
}
