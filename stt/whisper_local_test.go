package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"plain_text",
			"hello world\n",
			"hello world",
		},
		{
			"range_markers_stripped",
			"[00:00:00.000 --> 00:00:06.000] first part\n[00:00:06.000 --> 00:00:12.000] second part\n",
			"first part second part",
		},
		{
			"artifacts_stripped",
			"[BLANK_AUDIO]\nreal speech [MUSIC] continues\n",
			"real speech continues",
		},
		{
			"diagnostics_dropped",
			"whisper_init_from_file: loading model\nmain: processing\nactual words\nggml_metal_init: found device\n",
			"actual words",
		},
		{
			"whitespace_collapsed",
			"  spaced   out \n\n  lines  \n",
			"spaced out lines",
		},
		{
			"only_noise",
			"[BLANK_AUDIO]\nwhisper_full: done\n",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanOutput(tt.raw); got != tt.want {
				t.Errorf("cleanOutput = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscribeMissingInputs(t *testing.T) {
	dir := t.TempDir()
	chunk := writeFile(t, dir, "chunk.wav", "riff")
	bin := writeScript(t, dir, "#!/bin/sh\nexit 0\n")
	model := writeFile(t, dir, "model.bin", "ggml")

	tests := []struct {
		name              string
		chunk, bin, model string
	}{
		{"missing_chunk", filepath.Join(dir, "nope.wav"), bin, model},
		{"missing_binary", chunk, filepath.Join(dir, "nope-bin"), model},
		{"missing_model", chunk, bin, filepath.Join(dir, "nope.bin")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWhisperLocal(WhisperLocalConfig{BinPath: tt.bin, ModelPath: tt.model})
			_, err := w.Transcribe(context.Background(), tt.chunk)
			if !errors.Is(err, ErrMissingInput) {
				t.Fatalf("expected ErrMissingInput, got %v", err)
			}
		})
	}
}

func TestTranscribeSuccess(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	chunk := writeFile(t, dir, "chunk.wav", "riff")
	model := writeFile(t, dir, "model.bin", "ggml")
	bin := writeScript(t, dir, `#!/bin/sh
echo "whisper_init_from_file: loading model"
echo "[00:00:00.000 --> 00:00:06.000] transcribed speech"
`)

	w := NewWhisperLocal(WhisperLocalConfig{BinPath: bin, ModelPath: model})
	text, err := w.Transcribe(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "transcribed speech" {
		t.Errorf("text = %q, want %q", text, "transcribed speech")
	}
}

func TestTranscribeNonZeroExit(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	chunk := writeFile(t, dir, "chunk.wav", "riff")
	model := writeFile(t, dir, "model.bin", "ggml")
	bin := writeScript(t, dir, "#!/bin/sh\necho boom 1>&2\nexit 3\n")

	w := NewWhisperLocal(WhisperLocalConfig{BinPath: bin, ModelPath: model})
	_, err := w.Transcribe(context.Background(), chunk)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
	if exitErr.Stderr != "boom" {
		t.Errorf("stderr = %q, want %q", exitErr.Stderr, "boom")
	}
}

func TestTranscribeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess timeout test in short mode")
	}
	skipWithoutShell(t)
	dir := t.TempDir()
	chunk := writeFile(t, dir, "chunk.wav", "riff")
	model := writeFile(t, dir, "model.bin", "ggml")
	bin := writeScript(t, dir, "#!/bin/sh\nsleep 30\n")

	w := NewWhisperLocal(WhisperLocalConfig{
		BinPath:   bin,
		ModelPath: model,
		Timeout:   200 * time.Millisecond,
	})

	start := time.Now()
	_, err := w.Transcribe(context.Background(), chunk)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// Timeout plus the abort grace period plus scheduling slack.
	if elapsed > 5*time.Second {
		t.Errorf("Transcribe took %s, expected bounded overhead past timeout", elapsed)
	}
}

func TestAbortWhenIdle(t *testing.T) {
	w := NewWhisperLocal(WhisperLocalConfig{BinPath: "bin", ModelPath: "model"})
	w.Abort()
	w.Abort()
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test subprocess requires /bin/sh")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-whisper.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
