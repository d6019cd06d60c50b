// Command loopnote captures the machine's output audio, transcribes it
// chunk by chunk through a local whisper.cpp and distills each session
// into a structured note. A minimal stdin shell drives the lifecycle.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/loopnote/loopnote/audiocapture"
	"github.com/loopnote/loopnote/cache"
	"github.com/loopnote/loopnote/config"
	"github.com/loopnote/loopnote/internal/app"
	"github.com/loopnote/loopnote/internal/types"
	"github.com/loopnote/loopnote/langdetect"
	"github.com/loopnote/loopnote/notes"
	"github.com/loopnote/loopnote/pipeline"
	"github.com/loopnote/loopnote/stt"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// printingPipeline echoes each transcription to the console before
// handing it to the lifecycle's accumulator.
type printingPipeline struct {
	*pipeline.Pipeline
}

func (p printingPipeline) Start(onText func(types.TaggedTranscription)) error {
	return p.Pipeline.Start(func(tt types.TaggedTranscription) {
		fmt.Printf("[%s] %s\n", tt.TimeRange, tt.Text)
		onText(tt)
	})
}

func main() {
	var (
		nullDev = flag.Bool("null", false, "use the silent null capture device")
		cfgPath = flag.String("config", "", "config file path (default ~/.loopnote/config.json)")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Info("starting loopnote", "version", version, "commit", commit, "date", date)

	path := *cfgPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			slog.Error("resolve config path", "error", err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	var dev audiocapture.Device
	if *nullDev {
		dev = audiocapture.NewNullDevice(16000, 1)
		slog.Info("using null capture device")
	} else {
		dev, err = audiocapture.DefaultDevice()
		if err != nil {
			slog.Error("no loopback device", "error", err)
			os.Exit(1)
		}
	}
	engine := audiocapture.New(dev)

	worker := stt.NewWhisperLocal(stt.WhisperLocalConfig{
		BinPath:   cfg.WhisperBin,
		ModelPath: cfg.WhisperModel,
		Language:  cfg.Language,
		Threads:   cfg.Threads,
		Timeout:   cfg.Timeout(),
	})

	var store *cache.Cache
	if cfg.CacheEnabled {
		store, err = cache.Open(cfg.CacheDir)
		if err != nil {
			slog.Warn("transcription cache disabled", "error", err)
		} else {
			defer store.Close()
			slog.Info("transcription cache enabled", "dir", cfg.CacheDir)
		}
	}

	pipe := pipeline.New(engine, worker, store, pipeline.Config{
		ScratchDir:    cfg.ScratchDir,
		ChunkDuration: cfg.ChunkDuration(),
		MinChunkBytes: cfg.MinChunkBytes,
	})

	lifecycle := app.New(
		printingPipeline{pipe},
		notes.NewStore(cfg.NotesDir),
		langdetect.New(),
	)

	runShell(lifecycle)
}

func runShell(lifecycle *app.App) {
	fmt.Println("loopnote commands: start, stop, save, discard, status, quit")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "":
		case "start":
			if err := lifecycle.Dispatch(app.EventStart); err != nil {
				fmt.Println("start failed:", err)
			} else if lifecycle.State() == app.StateCapturing {
				fmt.Println("capturing; transcriptions will appear as chunks complete")
			}
		case "stop":
			lifecycle.Dispatch(app.EventStop)
			if lifecycle.State() == app.StateReview {
				printNote(lifecycle.Note())
				fmt.Println("save or discard?")
			}
		case "save":
			if err := lifecycle.Dispatch(app.EventSave); err != nil {
				fmt.Println("save failed:", err)
			}
		case "discard":
			lifecycle.Dispatch(app.EventDiscard)
		case "status":
			fmt.Printf("state=%s transcriptions=%d\n", lifecycle.State(), len(lifecycle.Transcript()))
		case "quit", "exit":
			lifecycle.Dispatch(app.EventStop)
			lifecycle.Dispatch(app.EventDiscard)
			return
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func printNote(n types.Note) {
	if n.Empty() {
		fmt.Println("session produced no transcribable audio")
		return
	}
	fmt.Printf("note %s (%s, %s)\n", n.SessionID, n.Range, n.Language)
	printSection("key points", n.KeyPoints)
	printSection("decisions", n.Decisions)
	printSection("action items", n.ActionItems)
}

func printSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Println(title + ":")
	for _, item := range items {
		fmt.Println("  -", item)
	}
}
