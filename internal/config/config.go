// Package config provides the configuration schema and loader for the
// E-Imkon voice tutor.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AudioBackend selects the device implementation for microphone and speaker.
type AudioBackend string

const (
	// AudioMalgo uses the local sound card through miniaudio.
	AudioMalgo AudioBackend = "malgo"

	// AudioNone runs without devices: the tutor cannot start and narration
	// is silent. Useful for headless content serving and tests.
	AudioNone AudioBackend = "none"
)

// IsValid reports whether b is a recognised backend.
func (b AudioBackend) IsValid() bool {
	return b == AudioMalgo || b == AudioNone
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Audio     AudioConfig     `yaml:"audio"`
	Content   ContentConfig   `yaml:"content"`
	Tutor     TutorConfig     `yaml:"tutor"`
	Narration NarrationConfig `yaml:"narration"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// GeminiConfig configures both remote engines: the Live session used by the
// tutor and the speech synthesis used for narration.
type GeminiConfig struct {
	// APIKey authenticates both engines. When empty, the GEMINI_API_KEY and
	// API_KEY environment variables are consulted in that order.
	APIKey string `yaml:"api_key"`

	// LiveModel selects the realtime model. Empty uses the built-in default.
	LiveModel string `yaml:"live_model"`

	// LiveBaseURL overrides the Live WebSocket endpoint.
	LiveBaseURL string `yaml:"live_base_url"`

	// Voice is the prebuilt voice for both engines.
	Voice string `yaml:"voice"`

	// TTSModels lists narration model variants, tried in order.
	TTSModels []string `yaml:"tts_models"`

	// TTSBaseURL overrides the speech synthesis endpoint.
	TTSBaseURL string `yaml:"tts_base_url"`
}

// AudioConfig selects and tunes the sound devices.
type AudioConfig struct {
	Backend AudioBackend `yaml:"backend"`

	// CaptureRate is requested from the microphone; the capture pipeline
	// resamples to 16 kHz regardless.
	CaptureRate int `yaml:"capture_rate"`

	// OutputRate is the playback device rate.
	OutputRate int `yaml:"output_rate"`

	// PeriodFrames is the microphone callback period. Zero lets the device
	// choose.
	PeriodFrames int `yaml:"period_frames"`
}

// ContentConfig selects the content store.
type ContentConfig struct {
	// PostgresDSN selects the PostgreSQL store. When empty, an in-memory
	// store is used.
	PostgresDSN string `yaml:"postgres_dsn"`

	// CatalogueFile replaces the built-in course catalogue.
	CatalogueFile string `yaml:"catalogue_file"`

	// DisableFallback stops serving the catalogue when the store is empty.
	DisableFallback bool `yaml:"disable_fallback"`

	// UserID is the learner whose progress is recorded when lessons open.
	UserID string `yaml:"user_id"`
}

// TutorConfig configures the voice tutor session.
type TutorConfig struct {
	// Instructions replaces the built-in system instructions.
	Instructions string `yaml:"instructions"`

	// SendQueue bounds microphone blocks awaiting transmission.
	SendQueue int `yaml:"send_queue"`

	Hotkeys HotkeysConfig `yaml:"hotkeys"`
}

// HotkeysConfig binds global shortcuts. An empty value disables the binding.
type HotkeysConfig struct {
	Disabled bool   `yaml:"disabled"`
	Toggle   string `yaml:"toggle"`
	Escape   string `yaml:"escape"`
	Home     string `yaml:"home"`
	Contrast string `yaml:"contrast"`
	Silence  string `yaml:"silence"`
}

// NarrationConfig configures passive narration.
type NarrationConfig struct {
	// Enabled turns narration on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// VoiceSupport is the initial state of spoken page and focus
	// announcements. Defaults to true.
	VoiceSupport *bool `yaml:"voice_support"`

	// Timeout bounds a single synthesis call.
	Timeout time.Duration `yaml:"timeout"`

	// MaxFailures opens a model variant's circuit breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker stays open.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// SoundCues plays the navigation tone and quiz answer tones. Defaults
	// to true.
	SoundCues *bool `yaml:"sound_cues"`
}

// IsEnabled reports whether narration is on.
func (n NarrationConfig) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

// CuesOn reports whether sound cues are played.
func (n NarrationConfig) CuesOn() bool { return n.SoundCues == nil || *n.SoundCues }

// VoiceSupportOn reports the initial voice support preference.
func (n NarrationConfig) VoiceSupportOn() bool { return n.VoiceSupport == nil || *n.VoiceSupport }

// MCPConfig configures the Model Context Protocol endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path the endpoint is mounted on.
	Path string `yaml:"path"`
}
