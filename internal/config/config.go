package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	envPrefix = "SPEECHSTREAM_"

	// TokenHeader carries service.api_key on the websocket handshake.
	TokenHeader = "X-Watson-Authorization-Token"

	redacted = "<redacted>"
)

// Config stores runtime configuration for the streaming client.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Stream  StreamConfig  `yaml:"stream"`
	Audio   AudioConfig   `yaml:"audio"`
	Log     LogConfig     `yaml:"log"`
}

type ServiceConfig struct {
	URL                string            `yaml:"url"`
	APIKey             string            `yaml:"api_key"`
	Headers            map[string]string `yaml:"headers"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	HandshakeTimeoutMS int               `yaml:"handshake_timeout_ms"`
}

type StreamConfig struct {
	AudioFormat       string `yaml:"audio_format"`
	InactivityTimeout int    `yaml:"inactivity_timeout"`
	SampleRate        int    `yaml:"sample_rate"`
	Channels          int    `yaml:"channels"`
	OpusBitrate       int    `yaml:"opus_bitrate"`
	ChunkSize         int    `yaml:"chunk_size"`
	StopGraceMS       int    `yaml:"stop_grace_ms"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Service: ServiceConfig{
			Headers:            map[string]string{},
			HandshakeTimeoutMS: 30000,
		},
		Stream: StreamConfig{
			AudioFormat:       "audio/l16;rate=16000",
			InactivityTimeout: 30,
			SampleRate:        16000,
			Channels:          1,
			ChunkSize:         4096,
			StopGraceMS:       5000,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load resolves configuration from defaults, then the optional YAML file at
// path, then SPEECHSTREAM_* environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// Validate reports settings a streaming run cannot do without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Service.URL) == "" {
		return errors.New("service.url is required (or set " + envPrefix + "URL)")
	}
	return nil
}

// Handshake returns the headers sent on connect, including the API key.
func (c ServiceConfig) Handshake() map[string]string {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	if c.APIKey != "" {
		headers[TokenHeader] = c.APIKey
	}
	return headers
}

func (c StreamConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMS) * time.Millisecond
}

func (c ServiceConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Service.APIKey != "" {
		out.Service.APIKey = redacted
	}
	out.Service.Headers = make(map[string]string, len(c.Service.Headers))
	for k, v := range c.Service.Headers {
		if isSecretHeader(k) {
			v = redacted
		}
		out.Service.Headers[k] = v
	}
	return out
}

func isSecretHeader(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "authorization") || strings.Contains(lower, "token") || strings.Contains(lower, "key")
}

func applyEnv(cfg *Config) {
	cfg.Service.URL = envOrDefault("URL", cfg.Service.URL)
	cfg.Service.APIKey = envOrDefault("API_KEY", cfg.Service.APIKey)
	cfg.Service.InsecureSkipVerify = envOrDefaultBool("INSECURE_SKIP_VERIFY", cfg.Service.InsecureSkipVerify)
	cfg.Service.HandshakeTimeoutMS = envOrDefaultInt("HANDSHAKE_TIMEOUT_MS", cfg.Service.HandshakeTimeoutMS)

	cfg.Stream.AudioFormat = envOrDefault("AUDIO_FORMAT", cfg.Stream.AudioFormat)
	cfg.Stream.InactivityTimeout = envOrDefaultInt("INACTIVITY_TIMEOUT", cfg.Stream.InactivityTimeout)
	cfg.Stream.SampleRate = envOrDefaultInt("SAMPLE_RATE", cfg.Stream.SampleRate)
	cfg.Stream.Channels = envOrDefaultInt("CHANNELS", cfg.Stream.Channels)
	cfg.Stream.OpusBitrate = envOrDefaultInt("OPUS_BITRATE", cfg.Stream.OpusBitrate)
	cfg.Stream.ChunkSize = envOrDefaultInt("AUDIO_CHUNK_SIZE", cfg.Stream.ChunkSize)
	cfg.Stream.StopGraceMS = envOrDefaultInt("STOP_GRACE_MS", cfg.Stream.StopGraceMS)

	cfg.Audio.RecorderCommand = envOrDefault("FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)

	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)
}

func normalize(cfg *Config) {
	defaults := Defaults()
	if cfg.Service.Headers == nil {
		cfg.Service.Headers = map[string]string{}
	}
	if cfg.Service.HandshakeTimeoutMS <= 0 {
		cfg.Service.HandshakeTimeoutMS = defaults.Service.HandshakeTimeoutMS
	}
	if strings.TrimSpace(cfg.Stream.AudioFormat) == "" {
		cfg.Stream.AudioFormat = defaults.Stream.AudioFormat
	}
	if cfg.Stream.InactivityTimeout == 0 {
		cfg.Stream.InactivityTimeout = defaults.Stream.InactivityTimeout
	}
	if cfg.Stream.SampleRate <= 0 {
		cfg.Stream.SampleRate = defaults.Stream.SampleRate
	}
	if cfg.Stream.Channels <= 0 {
		cfg.Stream.Channels = defaults.Stream.Channels
	}
	if cfg.Stream.OpusBitrate < 0 {
		cfg.Stream.OpusBitrate = 0
	}
	if cfg.Stream.ChunkSize < 256 {
		cfg.Stream.ChunkSize = defaults.Stream.ChunkSize
	}
	if cfg.Stream.StopGraceMS < 0 {
		cfg.Stream.StopGraceMS = defaults.Stream.StopGraceMS
	}
	if cfg.Audio.RecorderCommand == "" {
		cfg.Audio.RecorderCommand = defaults.Audio.RecorderCommand
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(envPrefix + key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
