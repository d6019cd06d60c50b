package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loopnote/loopnote/audiocapture"
	"github.com/loopnote/loopnote/cache"
	"github.com/loopnote/loopnote/internal/types"
	"github.com/loopnote/loopnote/stt"
)

// ErrRunning is returned when Start is called on a running pipeline.
var ErrRunning = errors.New("pipeline already running")

// Config holds the chunking parameters for one pipeline.
type Config struct {
	ScratchDir    string
	ChunkDuration time.Duration
	MinChunkBytes int
}

// Pipeline composes the capture engine, chunk scheduler, transcription
// queue and worker into one start/stop unit. The lifecycle layer drives
// it and receives tagged transcriptions through a single callback.
type Pipeline struct {
	engine *audiocapture.Engine
	worker stt.Transcriber
	store  *cache.Cache
	cfg    Config

	mu      sync.Mutex
	running bool
	sched   *Scheduler
	queue   *Queue
}

// New creates a pipeline. store may be nil to disable result caching.
func New(engine *audiocapture.Engine, worker stt.Transcriber, store *cache.Cache, cfg Config) *Pipeline {
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.MinChunkBytes <= 0 {
		cfg.MinChunkBytes = DefaultMinChunkBytes
	}
	return &Pipeline{engine: engine, worker: worker, store: store, cfg: cfg}
}

// Start initializes the capture device and brings up a fresh
// scheduler/queue pair for this session. A DeviceError from the engine
// prevents the session from starting.
func (p *Pipeline) Start(onText func(types.TaggedTranscription)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrRunning
	}

	if err := p.engine.Initialize(); err != nil {
		return err
	}

	queue := NewQueue(p.worker, p.cfg.ChunkDuration, p.store)
	queue.Start(onText)

	sched := NewScheduler(p.engine, SchedulerConfig{
		ScratchDir:    p.cfg.ScratchDir,
		ChunkDuration: p.cfg.ChunkDuration,
		MinChunkBytes: p.cfg.MinChunkBytes,
	}, queue.Enqueue)

	if err := p.engine.Start(); err != nil {
		queue.Stop()
		queue.Cleanup()
		return err
	}
	if err := sched.Start(); err != nil {
		p.engine.Stop()
		queue.Stop()
		queue.Cleanup()
		return err
	}

	p.sched = sched
	p.queue = queue
	p.running = true
	return nil
}

// Stop tears the session down in producer-to-consumer order: stop the
// capture goroutine, take the scheduler's final flush, drain the queue,
// then abort any in-flight worker call. No process and no trailing audio
// is leaked.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	sched, queue := p.sched, p.queue
	p.mu.Unlock()

	p.engine.Stop()
	sched.Stop()
	queue.Stop()
}

// Cleanup releases the capture device and clears the queue callback.
// Call after Stop; the pipeline can be started again afterwards.
func (p *Pipeline) Cleanup() {
	p.mu.Lock()
	queue := p.queue
	p.sched, p.queue = nil, nil
	p.mu.Unlock()

	if queue != nil {
		queue.Cleanup()
	}
	if err := p.engine.Close(); err != nil {
		slog.Warn("close capture device", "error", err)
	}
}

// ChunkDuration reports the configured chunk period.
func (p *Pipeline) ChunkDuration() time.Duration { return p.cfg.ChunkDuration }
