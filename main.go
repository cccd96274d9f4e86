// Package main provides the entry point for the ttsgen CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:   "ttsgen [TEXT]",
		Short: "Generate and play speech while it is being synthesized",
		Long: paragraph(
			fmt.Sprintf("\nSplit text into sentences, synthesize them one by one and %s while the rest is still generating.", keyword("start playing right away")),
		),
		Example: paragraph("ttsgen \"Hello there. General Kenobi.\"\necho 'Some text.' | ttsgen --out speech.wav\nttsgen story script.yml"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if piped, _ := stdinIsPipe(); !piped {
					return cmd.Help()
				}
			}
			return runGenerate(cmd, args)
		},
	}
)

// loadConfig resolves the configuration for every command.
func loadConfig(cmd *cobra.Command) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	c, err := config.LoadFromViper()
	if err != nil {
		return err
	}
	if err := c.ResolvePaths(); err != nil {
		return err
	}
	cfg = c
	applyLogLevel(cfg.LogLevel)
	log.Debug("configuration loaded", "command", cmd.Name(), "engine", cfg.Engine, "voice", cfg.Voice)
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	pf.StringP("engine", "e", "", "synthesis engine: tone, piper, ws or nats")
	pf.StringP("voice", "v", "", "voice id")
	pf.String("device", "", "device requested from the engine")
	pf.Float64("volume", 0, "output volume between 0 and 1")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.Bool("no-cache", false, "disable the chunk cache")

	_ = viper.BindPFlag("engine", pf.Lookup("engine"))
	_ = viper.BindPFlag("voice", pf.Lookup("voice"))
	_ = viper.BindPFlag("device", pf.Lookup("device"))
	_ = viper.BindPFlag("volume", pf.Lookup("volume"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))

	addGenerateFlags(rootCmd)

	rootCmd.AddCommand(generateCmd, storyCmd, voicesCmd, serveCmd, historyCmd, configCmd, manCmd)
}

// tryLoadConfigFromDefaultPlaces reads ttsgen.yml from the first config
// directory that has one and creates a default file when none does.
func tryLoadConfigFromDefaultPlaces() {
	config.LoadDotEnv()
	config.SetDefaults()

	dirs, err := config.Scope().ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}
	if c := os.Getenv("TTSGEN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	config.BindEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not read default configuration", "err", err)
	}
}
