package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, env prefix and app directories.
const AppName = "ttsgen"

// Scope returns the per-user application directories.
func Scope() *gap.Scope {
	return gap.NewScope(gap.User, AppName)
}

// SetDefaults registers every key with viper so that AutomaticEnv and
// config files can override it.
func SetDefaults() {
	d := DefaultConfig()

	viper.SetDefault("engine", d.Engine)
	viper.SetDefault("device", d.Device)
	viper.SetDefault("voice", d.Voice)
	viper.SetDefault("sample_rate", d.SampleRate)
	viper.SetDefault("max_chunk_runes", d.MaxChunkRunes)
	viper.SetDefault("chunk_interval", d.ChunkInterval.String())

	viper.SetDefault("volume", d.Volume)
	viper.SetDefault("auto_play", d.AutoPlay)
	viper.SetDefault("resume_threshold", d.ResumeThreshold.String())
	viper.SetDefault("device_buffer", d.DeviceBuffer.String())

	viper.SetDefault("tone.word_duration", d.Tone.WordDuration.String())

	viper.SetDefault("piper.binary", d.Piper.Binary)
	viper.SetDefault("piper.model", d.Piper.Model)
	viper.SetDefault("piper.timeout", d.Piper.Timeout.String())

	viper.SetDefault("remote.ws_url", d.Remote.WSURL)
	viper.SetDefault("remote.nats_url", d.Remote.NATSURL)
	viper.SetDefault("remote.subject", d.Remote.Subject)

	viper.SetDefault("cache.enabled", d.Cache.Enabled)
	viper.SetDefault("cache.dir", d.Cache.Dir)
	viper.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	viper.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	viper.SetDefault("cache.zstd_level", d.Cache.ZstdLevel)

	viper.SetDefault("history.enabled", d.History.Enabled)
	viper.SetDefault("history.path", d.History.Path)

	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.nats", d.Server.NATS)
	viper.SetDefault("server.embedded_nats", d.Server.EmbeddedNATS)
	viper.SetDefault("server.nats_port", d.Server.NATSPort)

	viper.SetDefault("log_level", d.LogLevel)
}

// BindEnv makes TTSGEN_SECTION_KEY override section.key.
func BindEnv() {
	viper.SetEnvPrefix(AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadFromViper builds a Config from the defaults, the config file, the
// environment and bound flags, then validates it.
func LoadFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("engine") {
		cfg.Engine = viper.GetString("engine")
	}
	if viper.IsSet("device") {
		cfg.Device = viper.GetString("device")
	}
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("sample_rate") {
		cfg.SampleRate = viper.GetInt("sample_rate")
	}
	if viper.IsSet("max_chunk_runes") {
		cfg.MaxChunkRunes = viper.GetInt("max_chunk_runes")
	}
	cfg.ChunkInterval = duration("chunk_interval", cfg.ChunkInterval)

	if viper.IsSet("volume") {
		cfg.Volume = viper.GetFloat64("volume")
	}
	if viper.IsSet("auto_play") {
		cfg.AutoPlay = viper.GetBool("auto_play")
	}
	cfg.ResumeThreshold = duration("resume_threshold", cfg.ResumeThreshold)
	cfg.DeviceBuffer = duration("device_buffer", cfg.DeviceBuffer)

	cfg.Tone.WordDuration = duration("tone.word_duration", cfg.Tone.WordDuration)

	if viper.IsSet("piper.binary") {
		cfg.Piper.Binary = viper.GetString("piper.binary")
	}
	if viper.IsSet("piper.model") {
		cfg.Piper.Model = viper.GetString("piper.model")
	}
	cfg.Piper.Timeout = duration("piper.timeout", cfg.Piper.Timeout)

	if viper.IsSet("remote.ws_url") {
		cfg.Remote.WSURL = viper.GetString("remote.ws_url")
	}
	if viper.IsSet("remote.nats_url") {
		cfg.Remote.NATSURL = viper.GetString("remote.nats_url")
	}
	if viper.IsSet("remote.subject") {
		cfg.Remote.Subject = viper.GetString("remote.subject")
	}

	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	if viper.IsSet("cache.dir") {
		cfg.Cache.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryMB = viper.GetInt("cache.memory_mb")
	}
	if viper.IsSet("cache.disk_mb") {
		cfg.Cache.DiskMB = viper.GetInt("cache.disk_mb")
	}
	if viper.IsSet("cache.zstd_level") {
		cfg.Cache.ZstdLevel = viper.GetInt("cache.zstd_level")
	}

	if viper.IsSet("history.enabled") {
		cfg.History.Enabled = viper.GetBool("history.enabled")
	}
	if viper.IsSet("history.path") {
		cfg.History.Path = viper.GetString("history.path")
	}

	if viper.IsSet("server.addr") {
		cfg.Server.Addr = viper.GetString("server.addr")
	}
	if viper.IsSet("server.nats") {
		cfg.Server.NATS = viper.GetBool("server.nats")
	}
	if viper.IsSet("server.embedded_nats") {
		cfg.Server.EmbeddedNATS = viper.GetBool("server.embedded_nats")
	}
	if viper.IsSet("server.nats_port") {
		cfg.Server.NATSPort = viper.GetInt("server.nats_port")
	}

	if viper.IsSet("log_level") {
		cfg.LogLevel = viper.GetString("log_level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// duration reads key as a duration string, keeping fallback when unset or
// unparsable.
func duration(key string, fallback time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return fallback
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d
	}
	return fallback
}

// ResolvePaths fills empty cache and history locations with the user's
// application directories.
func (c *Config) ResolvePaths() error {
	scope := Scope()
	if c.Cache.Dir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("locate cache dir: %w", err)
		}
		c.Cache.Dir = filepath.Join(dir, "chunks")
	}
	if c.History.Path == "" {
		dir, err := scope.DataPath("history.db")
		if err != nil {
			return fmt.Errorf("locate data dir: %w", err)
		}
		c.History.Path = dir
	}
	return nil
}
