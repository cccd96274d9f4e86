package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# synthesis engine: tone, piper, ws or nats
engine: "tone"
# device requested from the engine (cpu or gpu)
device: "cpu"
# voice used when none is given
voice: "af_heart"
# output sample rate of the built-in engines
sample_rate: 24000
# longest chunk sent to the engine, in characters
max_chunk_runes: 400
# pause between chunks, useful to throttle remote engines
chunk_interval: "0s"

# playback
volume: 1.0
auto_play: true
# buffered audio needed before playback resumes after running dry
resume_threshold: "1s"
device_buffer: "60ms"

tone:
  word_duration: "180ms"

piper:
  binary: "piper"
  # model: "/path/to/en_US-lessac-medium.onnx"
  timeout: "30s"

# workers running in another process
remote:
  ws_url: "ws://127.0.0.1:7788/synth"
  nats_url: "nats://127.0.0.1:4222"
  subject: "ttsgen.synth"

cache:
  enabled: true
  # dir: "~/.cache/ttsgen/chunks"
  memory_mb: 32
  disk_mb: 256
  zstd_level: 3

history:
  enabled: true
  # path: "~/.local/share/ttsgen/history.db"

server:
  addr: "127.0.0.1:7788"
  # also answer synthesis requests over NATS
  nats: false
  # run a NATS server in process instead of connecting to remote.nats_url
  embedded_nats: false
  nats_port: 4222

log_level: "info"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the ttsgen config file",
	Long:    paragraph(fmt.Sprintf("\n%s the ttsgen config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("ttsgen config\nttsgen config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("ttsgen", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			return errors.New("no config file location known: pass --config")
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
