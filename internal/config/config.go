// Package config holds the settings of the player and loads them from the
// config file, the environment and a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Engines accepted by Config.Engine.
const (
	EngineTone  = "tone"
	EnginePiper = "piper"
	EngineWS    = "ws"
	EngineNATS  = "nats"
)

// Config contains every setting.
type Config struct {
	// Synthesis
	Engine        string        `yaml:"engine" env:"TTSGEN_ENGINE" envDefault:"tone"`
	Device        string        `yaml:"device" env:"TTSGEN_DEVICE" envDefault:"cpu"`
	Voice         string        `yaml:"voice" env:"TTSGEN_VOICE" envDefault:"af_heart"`
	SampleRate    int           `yaml:"sample_rate" env:"TTSGEN_SAMPLE_RATE" envDefault:"24000"`
	MaxChunkRunes int           `yaml:"max_chunk_runes" env:"TTSGEN_MAX_CHUNK_RUNES" envDefault:"400"`
	ChunkInterval time.Duration `yaml:"chunk_interval" env:"TTSGEN_CHUNK_INTERVAL" envDefault:"0s"`

	// Playback
	Volume          float64       `yaml:"volume" env:"TTSGEN_VOLUME" envDefault:"1.0"`
	AutoPlay        bool          `yaml:"auto_play" env:"TTSGEN_AUTO_PLAY" envDefault:"true"`
	ResumeThreshold time.Duration `yaml:"resume_threshold" env:"TTSGEN_RESUME_THRESHOLD" envDefault:"1s"`
	DeviceBuffer    time.Duration `yaml:"device_buffer" env:"TTSGEN_DEVICE_BUFFER" envDefault:"60ms"`

	Tone    ToneConfig    `yaml:"tone"`
	Piper   PiperConfig   `yaml:"piper"`
	Remote  RemoteConfig  `yaml:"remote"`
	Cache   CacheConfig   `yaml:"cache"`
	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`

	LogLevel string `yaml:"log_level" env:"TTSGEN_LOG_LEVEL" envDefault:"info"`
}

// ToneConfig configures the built-in tone engine.
type ToneConfig struct {
	WordDuration time.Duration `yaml:"word_duration" env:"TTSGEN_TONE_WORD_DURATION" envDefault:"180ms"`
}

// PiperConfig configures the piper engine.
type PiperConfig struct {
	Binary  string        `yaml:"binary" env:"TTSGEN_PIPER_BINARY" envDefault:"piper"`
	Model   string        `yaml:"model" env:"TTSGEN_PIPER_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TTSGEN_PIPER_TIMEOUT" envDefault:"30s"`
}

// RemoteConfig locates a worker in another process.
type RemoteConfig struct {
	WSURL   string `yaml:"ws_url" env:"TTSGEN_REMOTE_WS_URL" envDefault:"ws://127.0.0.1:7788/synth"`
	NATSURL string `yaml:"nats_url" env:"TTSGEN_REMOTE_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Subject string `yaml:"subject" env:"TTSGEN_REMOTE_SUBJECT" envDefault:"ttsgen.synth"`
}

// CacheConfig configures the chunk cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" env:"TTSGEN_CACHE_ENABLED" envDefault:"true"`
	Dir       string `yaml:"dir" env:"TTSGEN_CACHE_DIR"`
	MemoryMB  int    `yaml:"memory_mb" env:"TTSGEN_CACHE_MEMORY_MB" envDefault:"32"`
	DiskMB    int    `yaml:"disk_mb" env:"TTSGEN_CACHE_DISK_MB" envDefault:"256"`
	ZstdLevel int    `yaml:"zstd_level" env:"TTSGEN_CACHE_ZSTD_LEVEL" envDefault:"3"`
}

// HistoryConfig configures the generation history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"TTSGEN_HISTORY_ENABLED" envDefault:"true"`
	Path    string `yaml:"path" env:"TTSGEN_HISTORY_PATH"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"TTSGEN_SERVER_ADDR" envDefault:"127.0.0.1:7788"`
	NATS bool   `yaml:"nats" env:"TTSGEN_SERVER_NATS" envDefault:"false"`

	// EmbeddedNATS runs a NATS server in process on NATSPort.
	EmbeddedNATS bool `yaml:"embedded_nats" env:"TTSGEN_SERVER_EMBEDDED_NATS" envDefault:"false"`
	NATSPort     int  `yaml:"nats_port" env:"TTSGEN_SERVER_NATS_PORT" envDefault:"4222"`
}

// DefaultConfig returns the defaults declared in the envDefault tags.
func DefaultConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		// Only reachable if a default tag above is malformed.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// FromEnv returns the defaults overridden by TTSGEN_* variables.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files without overriding variables
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			log.Debug("loaded environment file", "path", p)
		}
	}
}

// Validate checks ranges and normalises enumerations.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(c.Engine)
	switch c.Engine {
	case EngineTone, EnginePiper, EngineWS, EngineNATS:
	default:
		return fmt.Errorf("invalid engine %q: must be one of tone, piper, ws, nats", c.Engine)
	}

	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Volume)
	}

	validRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	ok := false
	for _, r := range validRates {
		ok = ok || c.SampleRate == r
	}
	if !ok {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validRates)
	}

	if c.MaxChunkRunes < 20 {
		return fmt.Errorf("max_chunk_runes must be at least 20, got %d", c.MaxChunkRunes)
	}
	if c.ChunkInterval < 0 {
		return fmt.Errorf("chunk_interval must not be negative, got %s", c.ChunkInterval)
	}
	if c.ResumeThreshold <= 0 {
		return fmt.Errorf("resume_threshold must be positive, got %s", c.ResumeThreshold)
	}
	if c.DeviceBuffer < 10*time.Millisecond || c.DeviceBuffer > time.Second {
		return fmt.Errorf("device_buffer must be between 10ms and 1s, got %s", c.DeviceBuffer)
	}
	if c.Tone.WordDuration <= 0 {
		return fmt.Errorf("tone.word_duration must be positive, got %s", c.Tone.WordDuration)
	}
	if c.Engine == EnginePiper && c.Piper.Model == "" {
		return fmt.Errorf("piper engine requires piper.model")
	}
	if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
		return fmt.Errorf("cache sizes must not be negative")
	}
	if c.Cache.ZstdLevel < 1 || c.Cache.ZstdLevel > 22 {
		return fmt.Errorf("cache.zstd_level must be between 1 and 22, got %d", c.Cache.ZstdLevel)
	}

	if c.Server.NATSPort < 0 || c.Server.NATSPort > 65535 {
		return fmt.Errorf("server.nats_port out of range: %d", c.Server.NATSPort)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}
