package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points Load at an empty home and away from any real .env or config file.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("INCLUTALK_ENV_FILE", filepath.Join(home, "missing.env"))
	t.Setenv("INCLUTALK_CONFIG", "")
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Deepgram.Language != "es" || cfg.Deepgram.Model != "nova-2" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram defaults: %+v", cfg.Deepgram)
	}
	if cfg.Playback.Voice != "es-PE-CamilaNeural" {
		t.Fatalf("unexpected voice: %q", cfg.Playback.Voice)
	}
	if cfg.Camera.Mode != CameraModeBridge || cfg.Camera.FrameRate != 30 {
		t.Fatalf("unexpected camera defaults: %+v", cfg.Camera)
	}
	if cfg.Classifier.Threshold != 0.30 {
		t.Fatalf("unexpected threshold: %v", cfg.Classifier.Threshold)
	}
	if cfg.Gesture.Countdown != 3 || cfg.Gesture.Hold != 2*time.Second {
		t.Fatalf("unexpected gesture defaults: %+v", cfg.Gesture)
	}
	if !strings.HasPrefix(cfg.Stats.Path, home) || !strings.HasPrefix(cfg.Lexicon.Path, home) {
		t.Fatalf("expected paths under home, got stats=%q lexicon=%q", cfg.Stats.Path, cfg.Lexicon.Path)
	}
	if cfg.Source != "" {
		t.Fatalf("expected no config file, got %q", cfg.Source)
	}
}

func TestLoadPrecedenceFileThenEnv(t *testing.T) {
	home := isolate(t)

	configPath := filepath.Join(home, ".config", "inclutalk", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	yamlDoc := `
deepgram:
  model: nova-3
  language: es-419
camera:
  mode: sidecar
  sidecar_url: ws://10.0.0.2:9000/hands
gesture:
  hold: 1500ms
classifier:
  threshold: 0.5
log:
  format: json
`
	if err := os.WriteFile(configPath, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("DEEPGRAM_MODEL", "nova-2-general")
	t.Setenv("INCLUTALK_GESTURE_HOLD_MS", "2500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Source != configPath {
		t.Fatalf("expected config file to be applied, got %q", cfg.Source)
	}
	if cfg.Deepgram.Model != "nova-2-general" {
		t.Fatalf("env should override file, got %q", cfg.Deepgram.Model)
	}
	if cfg.Deepgram.Language != "es-419" {
		t.Fatalf("file should override defaults, got %q", cfg.Deepgram.Language)
	}
	if cfg.Camera.Mode != CameraModeSidecar || cfg.Camera.SidecarURL != "ws://10.0.0.2:9000/hands" {
		t.Fatalf("unexpected camera config: %+v", cfg.Camera)
	}
	if cfg.Gesture.Hold != 2500*time.Millisecond {
		t.Fatalf("unexpected hold: %s", cfg.Gesture.Hold)
	}
	if cfg.Classifier.Threshold != 0.5 || cfg.Log.Format != "json" {
		t.Fatalf("unexpected classifier/log: %+v %+v", cfg.Classifier, cfg.Log)
	}
	if cfg.Playback.Voice != "es-PE-CamilaNeural" {
		t.Fatalf("unset keys keep defaults, got %q", cfg.Playback.Voice)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	home := isolate(t)

	envPath := filepath.Join(home, "kiosk.env")
	if err := os.WriteFile(envPath, []byte("DEEPGRAM_API_KEY=from-file\nINCLUTALK_LSP_URL=http://lsp.local:8000\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("INCLUTALK_ENV_FILE", envPath)

	// Register restores, then clear so godotenv can populate them.
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("INCLUTALK_LSP_URL", "")
	_ = os.Unsetenv("DEEPGRAM_API_KEY")
	_ = os.Unsetenv("INCLUTALK_LSP_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Deepgram.APIKey != "from-file" {
		t.Fatalf("expected key from env file, got %q", cfg.Deepgram.APIKey)
	}
	if cfg.Classifier.BaseURL != "http://lsp.local:8000" {
		t.Fatalf("expected classifier url from env file, got %q", cfg.Classifier.BaseURL)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	isolate(t)

	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_API_BASE", "https://example.com/v1")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("DEEPGRAM_ENDPOINTING_MS", "500")
	t.Setenv("INCLUTALK_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("INCLUTALK_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("INCLUTALK_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("INCLUTALK_SAMPLE_RATE", "22050")
	t.Setenv("INCLUTALK_CHANNELS", "2")
	t.Setenv("INCLUTALK_TTS_VOICE", "es-MX-DaliaNeural")
	t.Setenv("INCLUTALK_CAMERA_MODE", "SIDECAR")
	t.Setenv("INCLUTALK_LSP_THRESHOLD", "0.45")
	t.Setenv("INCLUTALK_AUDIO_CHUNK_SIZE", "512")
	t.Setenv("INCLUTALK_STREAMING_GRACE_MS", "25")
	t.Setenv("INCLUTALK_STATS", "off")
	t.Setenv("INCLUTALK_HTTP_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.APIBaseURL != "https://example.com/v1" {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.SmartFormat || cfg.Deepgram.Endpointing != 500 {
		t.Fatalf("unexpected deepgram flags: %+v", cfg.Deepgram)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 22050 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Playback.Voice != "es-MX-DaliaNeural" || cfg.Camera.Mode != CameraModeSidecar {
		t.Fatalf("unexpected voice/camera: %+v %+v", cfg.Playback, cfg.Camera)
	}
	if cfg.Classifier.Threshold != 0.45 {
		t.Fatalf("unexpected threshold: %v", cfg.Classifier.Threshold)
	}
	if cfg.Session.ChunkSize != 512 || cfg.Session.StreamingGrace != 25*time.Millisecond {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Stats.Enabled || cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected stats/http: %+v %+v", cfg.Stats, cfg.HTTP)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("INCLUTALK_SAMPLE_RATE", "bad")
	t.Setenv("INCLUTALK_CHANNELS", "-1")
	t.Setenv("INCLUTALK_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("INCLUTALK_STREAMING_GRACE_MS", "bad")
	t.Setenv("INCLUTALK_GESTURE_COUNTDOWN", "0")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected default channels, got %d", cfg.Audio.Channels)
	}
	if cfg.Session.ChunkSize != 4096 {
		t.Fatalf("expected chunk size fallback, got %d", cfg.Session.ChunkSize)
	}
	if cfg.Session.StreamingGrace != time.Second {
		t.Fatalf("expected default grace, got %s", cfg.Session.StreamingGrace)
	}
	if cfg.Gesture.Countdown != 3 {
		t.Fatalf("expected default countdown, got %d", cfg.Gesture.Countdown)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	isolate(t)
	t.Setenv("INCLUTALK_CAMERA_MODE", "usb")
	t.Setenv("INCLUTALK_LSP_THRESHOLD", "1.5")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "camera mode") || !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "broken.yaml")
	if err := os.WriteFile(path, []byte("camera: [\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("INCLUTALK_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
