package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/loopnote/loopnote/cache"
	"github.com/loopnote/loopnote/internal/types"
	"github.com/loopnote/loopnote/stt"
)

// timeRangeLayout formats the wall-clock range a chunk covers.
const timeRangeLayout = "15:04:05"

// queueDepth bounds how many chunks can pile up while one transcribes.
// At the default six-second chunk period this is minutes of backlog.
const queueDepth = 64

// Queue hands chunks to the worker strictly one at a time, in arrival
// order. A single drain goroutine is the only caller of the worker, so
// the recognizer subprocess is never invoked concurrently.
type Queue struct {
	worker   stt.Transcriber
	chunkDur time.Duration
	store    *cache.Cache // nil when caching is disabled

	mu     sync.Mutex
	ch     chan Chunk
	closed bool
	onText func(types.TaggedTranscription)

	drained chan struct{}
}

// NewQueue creates a queue over the given worker. store may be nil.
func NewQueue(worker stt.Transcriber, chunkDur time.Duration, store *cache.Cache) *Queue {
	if chunkDur <= 0 {
		chunkDur = DefaultChunkDuration
	}
	return &Queue{
		worker:   worker,
		chunkDur: chunkDur,
		store:    store,
		ch:       make(chan Chunk, queueDepth),
		drained:  make(chan struct{}),
	}
}

// Start registers the single consumer and spawns the drain goroutine.
func (q *Queue) Start(onText func(types.TaggedTranscription)) {
	q.mu.Lock()
	q.onText = onText
	q.mu.Unlock()
	go q.drain()
}

// Enqueue appends a chunk for transcription. Chunks arriving after Stop
// are deleted rather than silently leaked.
func (q *Queue) Enqueue(c Chunk) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if closed {
		os.Remove(c.Path)
		return
	}

	select {
	case q.ch <- c:
	default:
		slog.Warn("transcription queue full, dropping chunk", "index", c.Index)
		os.Remove(c.Path)
	}
}

// Stop blocks until every queued chunk has been processed, then aborts
// the worker so no subprocess outlives the call.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.drained
	q.worker.Abort()
}

// Cleanup clears the consumer callback. Call after Stop.
func (q *Queue) Cleanup() {
	q.mu.Lock()
	q.onText = nil
	q.mu.Unlock()
}

func (q *Queue) drain() {
	defer close(q.drained)
	for c := range q.ch {
		q.process(c)
	}
}

// process transcribes one chunk and emits the tagged result. The chunk
// file is deleted on every path, success or failure.
func (q *Queue) process(c Chunk) {
	defer os.Remove(c.Path)

	text, err := q.transcribe(c)
	if err != nil {
		// One failed chunk never halts the pipeline.
		slog.Error("transcribe chunk failed", "index", c.Index, "error", err)
		return
	}
	if text == "" {
		slog.Debug("chunk produced no speech", "index", c.Index)
		return
	}

	end := c.ProducedAt
	start := end.Add(-q.chunkDur)
	tagged := types.TaggedTranscription{
		Text:       text,
		ChunkIndex: c.Index,
		StartTime:  start,
		EndTime:    end,
		TimeRange:  start.Format(timeRangeLayout) + " - " + end.Format(timeRangeLayout),
	}

	q.mu.Lock()
	onText := q.onText
	q.mu.Unlock()
	if onText != nil {
		onText(tagged)
	}
}

// transcribe consults the cache before spending a worker invocation and
// stores fresh results on the way out.
func (q *Queue) transcribe(c Chunk) (string, error) {
	var wav []byte
	if q.store != nil {
		data, err := os.ReadFile(c.Path)
		if err == nil {
			if text, ok := q.store.Get(data); ok {
				slog.Debug("transcription cache hit", "index", c.Index)
				return text, nil
			}
			wav = data
		}
	}

	text, err := q.worker.Transcribe(context.Background(), c.Path)
	if err != nil {
		return "", err
	}

	if q.store != nil && wav != nil && text != "" {
		if err := q.store.Put(wav, text); err != nil {
			slog.Warn("store transcription in cache", "error", err)
		}
	}
	return text, nil
}
