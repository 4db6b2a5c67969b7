package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = "127.0.0.1:8080"
	DefaultCaptureRate  = 16000
	DefaultOutputRate   = 24000
	DefaultSendQueue    = 64
	DefaultMCPPath      = "/mcp"
	DefaultUserID       = "local"
	DefaultNarrationTTL = 30 * time.Second
)

// Default hotkeys. They mirror the shell's in-page shortcuts with a
// ctrl+shift prefix so they stay out of the way of other applications.
var DefaultHotkeys = HotkeysConfig{
	Toggle:   "ctrl+shift+m",
	Escape:   "ctrl+shift+x",
	Home:     "ctrl+shift+h",
	Contrast: "ctrl+shift+c",
	Silence:  "ctrl+shift+p",
}

// APIKeyEnv lists the environment variables consulted for the API key, in
// order.
var APIKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment fallbacks applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and the
// environment, and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	return cfg
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = AudioMalgo
	}
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = DefaultCaptureRate
	}
	if cfg.Audio.OutputRate == 0 {
		cfg.Audio.OutputRate = DefaultOutputRate
	}
	if cfg.Content.UserID == "" {
		cfg.Content.UserID = DefaultUserID
	}
	if cfg.Tutor.SendQueue == 0 {
		cfg.Tutor.SendQueue = DefaultSendQueue
	}
	hk := &cfg.Tutor.Hotkeys
	if !hk.Disabled && *hk == (HotkeysConfig{}) {
		*hk = DefaultHotkeys
	}
	if cfg.Narration.Timeout == 0 {
		cfg.Narration.Timeout = DefaultNarrationTTL
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}

// ApplyEnv fills the API key from the environment when the file leaves it
// empty.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg.Gemini.APIKey != "" {
		return
	}
	for _, name := range APIKeyEnv {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			cfg.Gemini.APIKey = v
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if cfg.Audio.Backend != "" && !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: malgo, none", cfg.Audio.Backend))
	}
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must not be negative", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.OutputRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d must not be negative", cfg.Audio.OutputRate))
	}
	if cfg.Audio.PeriodFrames < 0 {
		errs = append(errs, fmt.Errorf("audio.period_frames %d must not be negative", cfg.Audio.PeriodFrames))
	}

	if cfg.Tutor.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("tutor.send_queue %d must not be negative", cfg.Tutor.SendQueue))
	}
	for i, m := range cfg.Gemini.TTSModels {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("gemini.tts_models[%d] is empty", i))
		}
	}

	if cfg.Narration.Timeout < 0 {
		errs = append(errs, fmt.Errorf("narration.timeout %s must not be negative", cfg.Narration.Timeout))
	}
	if cfg.Narration.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("narration.max_failures %d must not be negative", cfg.Narration.MaxFailures))
	}

	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	// Missing credentials are reported to the learner at session start, not
	// treated as a configuration error.
	if cfg.Gemini.APIKey == "" {
		slog.Warn("gemini.api_key is empty and GEMINI_API_KEY/API_KEY are unset; the tutor and narration will be unavailable")
	}
	if cfg.Content.PostgresDSN == "" {
		slog.Info("content.postgres_dsn is empty; using the in-memory content store")
	}

	return errors.Join(errs...)
}
