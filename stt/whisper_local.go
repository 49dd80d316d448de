package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"snip-assist/audio"
)

// whisperModels maps model size names to their download source and
// approximate size for progress reporting.
var whisperModels = map[string]struct {
	URL  string
	Size int64
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 150 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 500 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// WhisperLocal transcribes through the whisper.cpp command line tool.
type WhisperLocal struct {
	modelSize string
	modelPath string
	binPath   string

	mu    sync.RWMutex
	ready bool
}

// WhisperLocalConfig configures the local provider.
type WhisperLocalConfig struct {
	ModelSize string // tiny, base, small, medium, large; default base
	ModelDir  string // where model files live
	BinPath   string // explicit whisper.cpp binary, otherwise searched
}

// NewWhisperLocal builds the provider. It is Ready once both the binary
// and the model file exist.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if _, ok := whisperModels[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("unknown whisper model size %q", cfg.ModelSize)
	}
	if cfg.ModelDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.ModelDir = filepath.Join(home, ".snip-assist", "models")
	}

	w := &WhisperLocal{
		modelSize: cfg.ModelSize,
		modelPath: filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		binPath:   cfg.BinPath,
	}
	if w.binPath == "" {
		w.binPath = findWhisperBinary()
	}
	if _, err := os.Stat(w.modelPath); err == nil && w.binPath != "" {
		w.ready = true
	}
	return w, nil
}

func (w *WhisperLocal) Name() string { return "whisper-local" }
func (w *WhisperLocal) Local() bool  { return true }

func (w *WhisperLocal) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// Setup downloads the model file if missing.
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	if w.Ready() {
		return nil
	}
	if w.binPath == "" {
		return fmt.Errorf("whisper.cpp binary not found, install whisper-cli")
	}

	info := whisperModels[w.modelSize]
	if err := os.MkdirAll(filepath.Dir(w.modelPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := downloadFile(ctx, info.URL, w.modelPath, info.Size, progress); err != nil {
		return fmt.Errorf("download whisper model %s: %w", w.modelSize, err)
	}

	w.mu.Lock()
	w.ready = true
	w.mu.Unlock()
	log.Printf("stt: whisper model %s downloaded to %s", w.modelSize, w.modelPath)
	return nil
}

// whisperOutput is the -oj JSON shape written by whisper.cpp.
type whisperOutput struct {
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe writes the samples to a temp WAV and runs whisper.cpp on it.
func (w *WhisperLocal) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if !w.Ready() {
		return "", fmt.Errorf("whisper model %s not downloaded", w.modelSize)
	}
	if sampleRate != audio.TargetSampleRate {
		samples = audio.Resample(samples, sampleRate, audio.TargetSampleRate)
	}

	wavPath := filepath.Join(os.TempDir(), fmt.Sprintf("snip_audio_%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(wavPath, audio.EncodeWAV(samples, audio.TargetSampleRate), 0o644); err != nil {
		return "", fmt.Errorf("write temp audio: %w", err)
	}
	defer os.Remove(wavPath)
	defer os.Remove(wavPath + ".json")

	cmd := exec.CommandContext(ctx, w.binPath,
		"-m", w.modelPath,
		"-f", wavPath,
		"-oj",
		"--no-prints",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp: %w (%s)", err, stderr.String())
	}

	// -oj writes <input>.json next to the audio file.
	raw, err := os.ReadFile(wavPath + ".json")
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse whisper output: %w", err)
	}
	var text string
	for _, seg := range out.Transcription {
		text += seg.Text
	}
	return text, nil
}

func (w *WhisperLocal) Close() error { return nil }

func findWhisperBinary() string {
	for _, name := range []string{"whisper-cli", "whisper-cpp", "whisper", "main"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func downloadFile(ctx context.Context, url, dest string, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		os.Remove(tmp)
	}()

	var downloaded int64
	last := 0
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)
			if expectedSize > 0 && progress != nil {
				pct := int(downloaded * 100 / expectedSize)
				if pct > last && pct <= 100 {
					last = pct
					progress(pct)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
