// Package types provides shared type definitions for the application.
package types

import "time"

// TaggedTranscription is one chunk's recognized text annotated with the
// wall-clock range it covers. Immutable once emitted by the pipeline.
type TaggedTranscription struct {
	Text       string    `json:"text"`
	ChunkIndex int       `json:"chunkIndex"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	TimeRange  string    `json:"timeRange"` // e.g. "14:03:12 - 14:03:18"
}

// Note is the structured summary distilled from a session's transcript.
type Note struct {
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
	Language    string    `json:"language"`   // ISO 639-1, "" when undetected
	Range       string    `json:"range"`      // first to last transcription range
	KeyPoints   []string  `json:"keyPoints"`
	Decisions   []string  `json:"decisions"`
	ActionItems []string  `json:"actionItems"`
	Transcript  string    `json:"transcript"`
}

// Empty reports whether distillation produced no content at all.
func (n Note) Empty() bool {
	return len(n.KeyPoints) == 0 && len(n.Decisions) == 0 &&
		len(n.ActionItems) == 0 && n.Transcript == ""
}
