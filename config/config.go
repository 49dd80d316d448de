// Package config persists user settings as JSON and layers environment
// overrides on top. Secrets stay in the environment (or an optional .env
// next to the executable); the settings file holds everything the UI can
// change at runtime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"snip-assist/hotkey"
)

// Env carries environment-only values, never written to disk.
type Env struct {
	APIKey            string `env:"OPENROUTER_API_KEY"`
	APIKeyFile        string `env:"OPENROUTER_API_KEY_FILE"`
	OpenAIKey         string `env:"OPENAI_API_KEY"`
	Endpoint          string `env:"LLM_ENDPOINT"`
	Model             string `env:"MODEL"`
	EnableFileLogging bool   `env:"ENABLE_FILE_LOGGING"`
}

// Settings is the durable JSON document.
type Settings struct {
	Bindings        map[string]string `json:"bindings"`
	Model           string            `json:"model"`
	Instructions    string            `json:"instructions"`
	SpeechProvider  string            `json:"speech_provider"`
	WhisperModel    string            `json:"whisper_model"`
	ModelDownloaded map[string]bool   `json:"model_downloaded"`
}

// Config is the merged runtime view. Settings mutations go through the
// accessor methods so every change lands on disk.
type Config struct {
	mu   sync.Mutex
	path string

	Settings Settings
	Env      Env
}

func defaultSettings() Settings {
	return Settings{
		Bindings: map[string]string{
			string(hotkey.ActionPrompt):   "Ctrl+Alt+Q",
			string(hotkey.ActionImage):    "Ctrl+Alt+W",
			string(hotkey.ActionTextgrab): "Ctrl+Alt+E",
			string(hotkey.ActionSpeech):   "Ctrl+Alt+R",
			string(hotkey.ActionMaster):   "Ctrl+Alt+A",
		},
		Model:           "google/gemini-2.0-flash-001",
		SpeechProvider:  "whisper-local",
		WhisperModel:    "base",
		ModelDownloaded: map[string]bool{},
	}
}

// DefaultPath returns the standard settings location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".snip-assist", "settings.json"), nil
}

// Load reads the settings file (creating defaults when absent) and applies
// environment overrides. A .env next to the executable is loaded first so
// portable installs work without touching the system environment.
func Load(path string) (*Config, error) {
	loadDotenv()

	c := &Config{path: path, Settings: defaultSettings()}
	if err := env.Parse(&c.Env); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if c.Env.APIKey == "" && c.Env.APIKeyFile != "" {
		if data, err := os.ReadFile(c.Env.APIKeyFile); err == nil {
			c.Env.APIKey = strings.TrimSpace(string(data))
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, c.save()
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(raw, &c.Settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if c.Settings.Bindings == nil {
		c.Settings.Bindings = defaultSettings().Bindings
	}
	if c.Settings.ModelDownloaded == nil {
		c.Settings.ModelDownloaded = map[string]bool{}
	}
	return c, nil
}

func loadDotenv() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}
	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}
}

// Model returns the vision model, preferring the environment override.
func (c *Config) Model() string {
	if c.Env.Model != "" {
		return c.Env.Model
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Settings.Model
}

// Instructions returns the saved prompt-analyzer instructions.
func (c *Config) Instructions() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Settings.Instructions
}

// SetInstructions persists new analyzer instructions.
func (c *Config) SetInstructions(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings.Instructions = s
	return c.save()
}

// ModelDownloaded reports whether a named speech model finished
// downloading; speech capture stays disabled until it did.
func (c *Config) ModelDownloaded(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Settings.ModelDownloaded[name]
}

// SetModelDownloaded records a finished model download.
func (c *Config) SetModelDownloaded(name string, done bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings.ModelDownloaded[name] = done
	return c.save()
}

// LoadBindings implements the hotkey store.
func (c *Config) LoadBindings() (map[hotkey.Action]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[hotkey.Action]string, len(c.Settings.Bindings))
	for k, v := range c.Settings.Bindings {
		out[hotkey.Action(k)] = v
	}
	return out, nil
}

// SaveBindings implements the hotkey store.
func (c *Config) SaveBindings(b map[hotkey.Action]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings.Bindings = make(map[string]string, len(b))
	for k, v := range b {
		c.Settings.Bindings[string(k)] = v
	}
	return c.save()
}

// save writes the settings file. Callers hold the mutex.
func (c *Config) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	raw, err := json.MarshalIndent(c.Settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, c.path)
}
