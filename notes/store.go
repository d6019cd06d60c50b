package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loopnote/loopnote/internal/types"
)

// Store writes notes as Markdown files with a YAML front-matter header.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir; the directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// frontMatter is the YAML header persisted ahead of the Markdown body.
type frontMatter struct {
	SessionID string    `yaml:"session_id"`
	CreatedAt time.Time `yaml:"created_at"`
	Language  string    `yaml:"language,omitempty"`
	Range     string    `yaml:"range,omitempty"`
}

// Save persists the note and returns the file path. Filenames derive
// from the session timestamp, so saves sort chronologically.
func (s *Store) Save(n types.Note) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create notes dir: %w", err)
	}

	head, err := yaml.Marshal(frontMatter{
		SessionID: n.SessionID,
		CreatedAt: n.CreatedAt,
		Language:  n.Language,
		Range:     n.Range,
	})
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n# Meeting Note\n")
	writeSection(&b, "Key Points", n.KeyPoints)
	writeSection(&b, "Decisions", n.Decisions)
	writeSection(&b, "Action Items", n.ActionItems)
	if n.Transcript != "" {
		b.WriteString("\n## Transcript\n\n")
		b.WriteString(n.Transcript)
		b.WriteString("\n")
	}

	path := filepath.Join(s.dir, n.CreatedAt.Format("20060102-150405")+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	return path, nil
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n## " + title + "\n\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}
