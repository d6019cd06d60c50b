// Package notes distills a session's raw transcript into a structured
// meeting note and persists notes as Markdown files.
package notes

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopnote/loopnote/internal/types"
)

// maxKeyPoints caps how many uncategorized sentences a note keeps.
const maxKeyPoints = 10

var (
	sentenceRe = regexp.MustCompile(`[.!?]+\s+|\n+`)
	decisionRe = regexp.MustCompile(`(?i)\b(decided|decision|agreed|approved|concluded|settled on|signed off)\b`)
	actionRe   = regexp.MustCompile(`(?i)\b(action item|to-?do|need(s)? to|follow(ing)? up|will (send|schedule|prepare|review|share|set up)|assigned|take care of|by (monday|tuesday|wednesday|thursday|friday|next week|end of))\b`)
)

// Distill classifies the transcript's sentences into decisions, action
// items and key points. language is the ISO 639-1 tag for the note, ""
// when undetected.
func Distill(entries []types.TaggedTranscription, language string) types.Note {
	note := types.Note{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now(),
		Language:  language,
	}
	if len(entries) == 0 {
		return note
	}

	first, last := entries[0], entries[len(entries)-1]
	note.Range = first.StartTime.Format("15:04:05") + " - " + last.EndTime.Format("15:04:05")

	var lines []string
	for _, e := range entries {
		lines = append(lines, e.Text)
	}
	note.Transcript = strings.Join(lines, " ")

	for _, sentence := range sentenceRe.Split(note.Transcript, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		switch {
		case decisionRe.MatchString(sentence):
			note.Decisions = append(note.Decisions, sentence)
		case actionRe.MatchString(sentence):
			note.ActionItems = append(note.ActionItems, sentence)
		case len(strings.Fields(sentence)) >= 6 && len(note.KeyPoints) < maxKeyPoints:
			note.KeyPoints = append(note.KeyPoints, sentence)
		}
	}
	return note
}
