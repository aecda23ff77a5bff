package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CameraModeBridge  = "bridge"
	CameraModeSidecar = "sidecar"
)

// Config stores runtime configuration for the kiosk.
type Config struct {
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	Audio      AudioConfig      `yaml:"audio"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Camera     CameraConfig     `yaml:"camera"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Gesture    GestureConfig    `yaml:"gesture"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
	Stats      StatsConfig      `yaml:"stats"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Session    SessionConfig    `yaml:"session"`

	// Source is the YAML file that was applied, if any.
	Source string `yaml:"-"`
}

type DeepgramConfig struct {
	APIKey      string        `yaml:"api_key"`
	APIBaseURL  string        `yaml:"api_base"`
	Model       string        `yaml:"model"`
	Language    string        `yaml:"language"`
	SmartFormat bool          `yaml:"smart_format"`
	Punctuate   bool          `yaml:"punctuate"`
	Endpointing int           `yaml:"endpointing_ms"`
	KeepAlive   time.Duration `yaml:"keepalive"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type PlaybackConfig struct {
	Voice         string `yaml:"voice"`
	Language      string `yaml:"language"`
	PlayerCommand string `yaml:"player_command"`
}

// CameraConfig selects where hand landmarks come from: the UI webview
// (bridge) or a local landmark sidecar over websocket.
type CameraConfig struct {
	Mode           string        `yaml:"mode"`
	SidecarURL     string        `yaml:"sidecar_url"`
	Device         string        `yaml:"device"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	MaxHands       int           `yaml:"max_hands"`
	FrameRate      int           `yaml:"frame_rate"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type ClassifierConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold float64       `yaml:"threshold"`
}

type GestureConfig struct {
	Countdown int           `yaml:"countdown"`
	Hold      time.Duration `yaml:"hold"`
}

type LexiconConfig struct {
	Path string `yaml:"path"`
}

type StatsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SessionConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	StreamingGrace time.Duration `yaml:"streaming_grace"`
}

// Load resolves configuration. Later sources win: built-in defaults, the
// YAML file, a .env file, then the process environment.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	envFile := envOrDefault("INCLUTALK_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read env file %q: %w", envFile, err)
	}

	cfg := Defaults(home)

	configPath := strings.TrimSpace(os.Getenv("INCLUTALK_CONFIG"))
	if configPath == "" {
		configPath = firstExisting(filepath.Join(home, ".config", "inclutalk", "config.yaml"))
	}
	if err := cfg.applyFile(configPath); err != nil {
		return Config{}, err
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults(home string) Config {
	dataDir := filepath.Join(home, ".local", "share", "inclutalk")
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    "es",
			SmartFormat: true,
			Punctuate:   true,
			Endpointing: 300,
			KeepAlive:   5 * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Playback: PlaybackConfig{
			Voice:         "es-PE-CamilaNeural",
			Language:      "es-PE",
			PlayerCommand: "ffplay",
		},
		Camera: CameraConfig{
			Mode:           CameraModeBridge,
			SidecarURL:     "ws://127.0.0.1:8765/hands",
			Device:         "0",
			Width:          640,
			Height:         480,
			MaxHands:       2,
			FrameRate:      30,
			AcquireTimeout: 10 * time.Second,
		},
		Classifier: ClassifierConfig{
			BaseURL:   "http://127.0.0.1:8000",
			Timeout:   5 * time.Second,
			Threshold: 0.30,
		},
		Gesture: GestureConfig{
			Countdown: 3,
			Hold:      2 * time.Second,
		},
		Lexicon: LexiconConfig{
			Path: filepath.Join(home, ".config", "inclutalk", "lexicon.yaml"),
		},
		Stats: StatsConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "stats.db"),
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8089",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{
			ChunkSize:      4096,
			StreamingGrace: time.Second,
		},
	}
}

func (c *Config) applyFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, c); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() {
	c.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", c.Deepgram.APIBaseURL)
	c.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", c.Deepgram.Model)
	c.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", c.Deepgram.Language)
	c.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", c.Deepgram.SmartFormat)
	c.Deepgram.Punctuate = envOrDefaultBool("DEEPGRAM_PUNCTUATE", c.Deepgram.Punctuate)
	c.Deepgram.Endpointing = envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", c.Deepgram.Endpointing)
	c.Deepgram.KeepAlive = envOrDefaultMillis("DEEPGRAM_KEEPALIVE_MS", c.Deepgram.KeepAlive)

	c.Audio.RecorderCommand = envOrDefault("INCLUTALK_FFMPEG_COMMAND", c.Audio.RecorderCommand)
	c.Audio.InputFormat = envOrDefault("INCLUTALK_AUDIO_INPUT_FORMAT", c.Audio.InputFormat)
	c.Audio.InputDevice = firstNonEmpty(
		os.Getenv("INCLUTALK_AUDIO_INPUT_DEVICE"),
		os.Getenv("PULSE_SOURCE"),
		c.Audio.InputDevice,
	)
	c.Audio.SampleRate = envOrDefaultInt("INCLUTALK_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = envOrDefaultInt("INCLUTALK_CHANNELS", c.Audio.Channels)

	c.Playback.Voice = envOrDefault("INCLUTALK_TTS_VOICE", c.Playback.Voice)
	c.Playback.Language = envOrDefault("INCLUTALK_TTS_LANGUAGE", c.Playback.Language)
	c.Playback.PlayerCommand = envOrDefault("INCLUTALK_PLAYER_COMMAND", c.Playback.PlayerCommand)

	c.Camera.Mode = strings.ToLower(envOrDefault("INCLUTALK_CAMERA_MODE", c.Camera.Mode))
	c.Camera.SidecarURL = envOrDefault("INCLUTALK_LANDMARKS_URL", c.Camera.SidecarURL)
	c.Camera.Device = envOrDefault("INCLUTALK_CAMERA_DEVICE", c.Camera.Device)
	c.Camera.FrameRate = envOrDefaultInt("INCLUTALK_CAMERA_FPS", c.Camera.FrameRate)

	c.Classifier.BaseURL = envOrDefault("INCLUTALK_LSP_URL", c.Classifier.BaseURL)
	c.Classifier.Timeout = envOrDefaultMillis("INCLUTALK_LSP_TIMEOUT_MS", c.Classifier.Timeout)
	c.Classifier.Threshold = envOrDefaultFloat("INCLUTALK_LSP_THRESHOLD", c.Classifier.Threshold)

	c.Gesture.Countdown = envOrDefaultInt("INCLUTALK_GESTURE_COUNTDOWN", c.Gesture.Countdown)
	c.Gesture.Hold = envOrDefaultMillis("INCLUTALK_GESTURE_HOLD_MS", c.Gesture.Hold)

	c.Lexicon.Path = envOrDefault("INCLUTALK_LEXICON_FILE", c.Lexicon.Path)

	c.Stats.Enabled = envOrDefaultBool("INCLUTALK_STATS", c.Stats.Enabled)
	c.Stats.Path = envOrDefault("INCLUTALK_STATS_DB", c.Stats.Path)

	c.HTTP.Enabled = envOrDefaultBool("INCLUTALK_HTTP", c.HTTP.Enabled)
	c.HTTP.Addr = envOrDefault("INCLUTALK_HTTP_ADDR", c.HTTP.Addr)

	c.Log.Level = strings.ToLower(envOrDefault("INCLUTALK_LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(envOrDefault("INCLUTALK_LOG_FORMAT", c.Log.Format))

	c.Session.ChunkSize = envOrDefaultInt("INCLUTALK_AUDIO_CHUNK_SIZE", c.Session.ChunkSize)
	c.Session.StreamingGrace = envOrDefaultMillis("INCLUTALK_STREAMING_GRACE_MS", c.Session.StreamingGrace)
}

func (c *Config) normalize() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Session.ChunkSize < 256 {
		c.Session.ChunkSize = 4096
	}
	if c.Session.StreamingGrace < 0 {
		c.Session.StreamingGrace = 0
	}
	if c.Camera.FrameRate <= 0 {
		c.Camera.FrameRate = 30
	}
	if c.Gesture.Countdown <= 0 {
		c.Gesture.Countdown = 3
	}
	if c.Gesture.Hold <= 0 {
		c.Gesture.Hold = 2 * time.Second
	}
}

// Validate rejects settings that cannot be wired.
func (c Config) Validate() error {
	var errs []error
	switch c.Camera.Mode {
	case CameraModeBridge, CameraModeSidecar:
	default:
		errs = append(errs, fmt.Errorf("camera mode must be %q or %q, got %q", CameraModeBridge, CameraModeSidecar, c.Camera.Mode))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		errs = append(errs, fmt.Errorf("classifier threshold must be within [0,1], got %v", c.Classifier.Threshold))
	}
	return errors.Join(errs...)
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
