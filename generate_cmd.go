package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/ui"
)

var generateCmd = &cobra.Command{
	Use:     "generate [TEXT]",
	Aliases: []string{"say"},
	Short:   "Generate speech from text and play it",
	Long: paragraph(fmt.Sprintf("\n%s text passed as arguments, read from a file or piped on stdin. Playback starts with the first sentence.",
		keyword("Speak"))),
	Example: paragraph("ttsgen generate \"Hello there.\"\nttsgen generate -f chapter.txt --out chapter.wav --silent"),
	RunE:    runGenerate,
}

func addGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("file", "f", "", "read text from file")
	f.StringP("out", "o", "", "write the merged audio to a WAV file")
	f.Bool("silent", false, "generate without playing")
	f.Bool("plain", false, "print progress instead of showing the player")
}

func init() {
	addGenerateFlags(generateCmd)
}

// readText joins args, or reads the file flag, or stdin.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to read %s: %w", path, err)
		}
		return string(b), nil
	}
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read from stdin: %w", err)
	}
	return string(b), nil
}

// playbackOptions are the flags shared by generate and story.
type playbackOptions struct {
	out    string
	silent bool
	plain  bool
}

func readPlaybackOptions(cmd *cobra.Command) playbackOptions {
	var o playbackOptions
	o.out, _ = cmd.Flags().GetString("out")
	o.silent, _ = cmd.Flags().GetBool("silent")
	o.plain, _ = cmd.Flags().GetBool("plain")
	if !o.silent && !o.plain && !isTerminal() {
		o.plain = true
	}
	return o
}

func (o playbackOptions) output() playback.Output {
	if o.silent {
		return playback.NewVirtualOutput()
	}
	return playback.NewOtoOutput(cfg.DeviceBuffer, log.WithPrefix("oto"))
}

func runGenerate(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("no text to speak")
	}
	opts := readPlaybackOptions(cmd)
	noCache, _ := cmd.Flags().GetBool("no-cache")

	return runJob(cmd.Context(), opts, !noCache, "Speaking", func(ctx context.Context, rt *runtime) error {
		res, err := rt.session.Generate(ctx, text, rt.resolveVoice(cfg.Voice))
		if err == nil && opts.plain {
			fmt.Fprintf(os.Stderr, "%s %d chunks, %s of audio\n", keyword("generated"), res.Chunks, res.Duration.Round(10*time.Millisecond))
		}
		return err
	})
}

// runJob starts a session, runs job under the player or in plain mode,
// waits for playback to finish and writes the merged file.
func runJob(parent context.Context, opts playbackOptions, useCache bool, title string, job func(context.Context, *runtime) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	if opts.plain || opts.silent {
		logToStderr()
		applyLogLevel(cfg.LogLevel)
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	rt, err := startSession(startCtx, cfg, opts.output(), !opts.silent, useCache)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Debug("shutdown", "err", err)
		}
	}()

	var jobErr error
	if opts.plain || opts.silent {
		jobErr = job(ctx, rt)
		if jobErr == nil && !opts.silent {
			waitForPlayback(ctx, rt.session.Player())
		}
	} else {
		uiCfg, err := env.ParseAs[ui.Config]()
		if err != nil {
			return fmt.Errorf("error parsing config: %w", err)
		}
		uiCfg.Volume = cfg.Volume
		uiCfg.Title = title
		p := ui.NewProgram(uiCfg, rt.session, func(ctx context.Context) error { return job(ctx, rt) })
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
		jobErr = ui.Err(final)
	}

	if opts.out != "" {
		if err := writeArtifact(rt, opts.out); err != nil {
			return err
		}
	}
	if jobErr != nil && !errors.Is(jobErr, context.Canceled) {
		msg := rt.session.Snapshot().Error
		if msg == "" {
			msg = jobErr.Error()
		}
		fmt.Fprintln(os.Stderr, errStyle.Render(msg))
		return jobErr
	}
	return nil
}

// waitForPlayback blocks until the transport stops with nothing left to
// generate.
func waitForPlayback(ctx context.Context, player *playback.Scheduler) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		st := player.Status()
		if st.State == playback.StateStopped && !st.Generating {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func writeArtifact(rt *runtime, path string) error {
	a, err := rt.session.Artifacts().Current()
	if errors.Is(err, export.ErrNoArtifact) {
		return fmt.Errorf("nothing was generated, %s not written", path)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, a.Data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "%s %s %s\n", keyword("wrote"), path, faint(fmt.Sprintf("(%s, %d chunks)", a.Duration.Round(10*time.Millisecond), a.Chunks)))
	return nil
}
