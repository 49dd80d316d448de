// snip-assist is the resident capture tool: it sits in the tray, owns the
// global hotkeys and serves delegated operations from the companion CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"snip-assist/audio"
	"snip-assist/capture"
	"snip-assist/clipboard"
	"snip-assist/config"
	"snip-assist/dispatch"
	"snip-assist/eventloop"
	"snip-assist/history"
	"snip-assist/hotkey"
	"snip-assist/ipc"
	"snip-assist/keystate"
	"snip-assist/llm"
	"snip-assist/logutil"
	"snip-assist/ocr"
	"snip-assist/overlay"
	"snip-assist/popup"
	"snip-assist/session"
	"snip-assist/speech"
	"snip-assist/stt"
	"snip-assist/tray"
	"snip-assist/worker"
)

func main() {
	// Windows scales coordinates behind non-aware processes, which breaks
	// the overlay-to-bitmap mapping. Opt in before any window exists.
	enableDPIAwareness()

	// The tray and popup message loops must not share this goroutine's
	// thread.
	runtime.LockOSThread()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type residentOptions struct {
	settingsPath string
}

func newRootCmd() *cobra.Command {
	opts := &residentOptions{}
	cmd := &cobra.Command{
		Use:           "snip-assist",
		Short:         "Capture a screen region and analyze it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(opts)
		},
	}
	cmd.Flags().StringVar(&opts.settingsPath, "settings", "", "Path to settings file (default ~/.snip-assist/settings.json)")
	return cmd
}

func runResident(opts *residentOptions) error {
	if port, found := ipc.Detect(); found {
		return fmt.Errorf("already running on port %d", port)
	}

	path := opts.settingsPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logutil.Setup(cfg.Env.EnableFileLogging)
	log.Printf("starting, settings=%s model=%s", path, cfg.Model())
	if cfg.Env.APIKey != "" {
		log.Printf("vision API key: %s", logutil.RedactKey(cfg.Env.APIKey))
	} else {
		log.Printf("no vision API key set, prompt and image analyzers will fail")
	}

	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("init clipboard: %w", err)
	}

	vision := llm.New(llm.Config{
		APIKey:   cfg.Env.APIKey,
		Model:    cfg.Model(),
		Endpoint: cfg.Env.Endpoint,
	})
	extractor := ocr.New(ocr.WithLanguages("eng"))
	capturer := capture.New()

	providers, transcriber := buildSpeechProviders(cfg)
	defer providers.Close()

	dispatcher := dispatch.New(vision, extractor, transcriber, shotCapturer{capturer})
	pool := worker.New(dispatcher, 1)
	popups := popup.NewManager(nil)

	hist, err := history.Open(filepath.Join(filepath.Dir(path), "history"))
	if err != nil {
		log.Printf("history store unavailable: %v", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	// The loop, router and speech controller reference each other, so the
	// loop pointer is filled in after construction.
	var loop *eventloop.Loop
	router := hotkey.NewRouter(cfg, nil, func(action hotkey.Action, repeat bool) {
		loop.HandleHotkey(action, repeat)
	})
	router.Restore()

	ctrlRef := &controllerRef{}
	indicator := popup.NewSpeechIndicator(popups, ctrlRef)
	speechCtrl := speech.NewController(
		audio.NewRecorder(nil),
		transcriber.Transcribe,
		clipboard.WriteAndPaste,
		indicator,
		keystate.NewWatcher(nil),
	)
	ctrlRef.c = speechCtrl

	loop = eventloop.New(eventloop.Deps{
		Session:    session.New(),
		Capturer:   capturer,
		Selector:   overlay.NewSelector(),
		Pool:       pool,
		Dispatcher: dispatcher,
		Popups:     popups,
		History:    hist,
		Speech:     speechCtrl,
		Router:     router,
	})

	srv, err := ipc.NewServer(loop.HandleCall)
	if err != nil {
		return err
	}
	go srv.Serve()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
		tray.Quit()
	}()

	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("hotkey router stopped: %v", err)
		}
	}()
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("event loop stopped: %v", err)
		}
	}()

	// Blocks until Quit; must run on the locked main thread.
	tray.Run(tray.Handlers{
		OnAction: loop.PostAction,
		OnQuit:   cancel,
	})
	return nil
}

// buildSpeechProviders registers the available speech backends and returns
// the one selected in settings.
func buildSpeechProviders(cfg *config.Config) (*stt.Registry, stt.Provider) {
	reg := stt.NewRegistry()

	local, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{
		ModelSize: cfg.Settings.WhisperModel,
	})
	if err != nil {
		log.Printf("whisper-local unavailable: %v", err)
	} else {
		reg.Register(local)
		if !local.Ready() && !cfg.ModelDownloaded(cfg.Settings.WhisperModel) {
			go downloadWhisperModel(cfg, local)
		}
	}

	if cfg.Env.OpenAIKey != "" {
		reg.Register(stt.NewOpenAI(stt.OpenAIConfig{APIKey: cfg.Env.OpenAIKey}))
	}

	selected, ok := reg.Get(cfg.Settings.SpeechProvider)
	if !ok {
		log.Printf("speech provider %q not available, transcription disabled", cfg.Settings.SpeechProvider)
		selected = unavailableProvider{name: cfg.Settings.SpeechProvider}
	}
	return reg, selected
}

func downloadWhisperModel(cfg *config.Config, local *stt.WhisperLocal) {
	log.Printf("downloading whisper model %q", cfg.Settings.WhisperModel)
	err := local.Setup(context.Background(), func(percent int) {
		if percent%20 == 0 {
			log.Printf("whisper model download: %d%%", percent)
		}
	})
	if err != nil {
		log.Printf("whisper model download failed: %v", err)
		return
	}
	if err := cfg.SetModelDownloaded(cfg.Settings.WhisperModel, true); err != nil {
		log.Printf("persist model flag: %v", err)
	}
}

// controllerRef breaks the construction cycle between the speech indicator
// and its controller.
type controllerRef struct {
	c *speech.Controller
}

func (r *controllerRef) ShouldStop() bool             { return r.c.ShouldStop() }
func (r *controllerRef) StopAndTranscribe(gen uint64) { r.c.StopAndTranscribe(gen) }
func (r *controllerRef) PopupClosed(gen uint64)       { r.c.PopupClosed(gen) }

// unavailableProvider fails every transcription with a clear message
// instead of leaving the dispatcher with a nil backend.
type unavailableProvider struct {
	name string
}

func (u unavailableProvider) Name() string { return u.name }
func (u unavailableProvider) Local() bool  { return true }
func (u unavailableProvider) Ready() bool  { return false }

func (u unavailableProvider) Setup(ctx context.Context, progress func(int)) error {
	return fmt.Errorf("speech provider %q not available", u.name)
}

func (u unavailableProvider) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	return "", fmt.Errorf("speech provider %q not available", u.name)
}

func (u unavailableProvider) Close() error { return nil }

// shotCapturer adapts the capturer to the dispatcher's fallback interface.
type shotCapturer struct {
	c *capture.Capturer
}

func (s shotCapturer) Capture(opts capture.Options) (*capture.Shot, error) {
	shot, err := s.c.Capture(opts)
	if err != nil {
		return nil, err
	}
	return &shot, nil
}
