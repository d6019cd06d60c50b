package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Language != "auto" {
		t.Errorf("language = %q, want auto", cfg.Language)
	}
	if cfg.ChunkSeconds != 6 {
		t.Errorf("chunk seconds = %d, want 6", cfg.ChunkSeconds)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Errorf("timeout seconds = %d, want 30", cfg.TimeoutSeconds)
	}
	if cfg.MinChunkBytes != 4*1024 {
		t.Errorf("min chunk bytes = %d, want 4096", cfg.MinChunkBytes)
	}
	if cfg.Threads != 4 {
		t.Errorf("threads = %d, want 4", cfg.Threads)
	}
	if cfg.NotesDir == "" || cfg.ScratchDir == "" || cfg.CacheDir == "" {
		t.Error("expected default directories to be set")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Language = "en"
	cfg.WhisperBin = "/usr/local/bin/whisper-cli"
	cfg.ChunkSeconds = 10

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if cfg.InstallID == "" {
		t.Fatal("Save did not generate an install id")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.InstallID != cfg.InstallID {
		t.Errorf("install id = %q, want %q", loaded.InstallID, cfg.InstallID)
	}
	if loaded.Language != "en" {
		t.Errorf("language = %q, want en", loaded.Language)
	}
	if loaded.WhisperBin != cfg.WhisperBin {
		t.Errorf("whisper bin = %q, want %q", loaded.WhisperBin, cfg.WhisperBin)
	}
	if loaded.ChunkSeconds != 10 {
		t.Errorf("chunk seconds = %d, want 10", loaded.ChunkSeconds)
	}
}

func TestLanguageCanonicalization(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"auto_passthrough", "auto", "auto", false},
		{"plain_code", "en", "en", false},
		{"region_stripped", "en-US", "en", false},
		{"chinese", "zh-Hans", "zh", false},
		{"garbage", "not a language", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.json")
			if err := os.WriteFile(path, []byte(`{"language":"`+tt.in+`"}`), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Language != tt.want {
				t.Errorf("language = %q, want %q", cfg.Language, tt.want)
			}
		})
	}
}
