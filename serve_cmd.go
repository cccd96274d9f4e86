package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/config"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/server"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the player and the synthesis worker over HTTP",
	Long: paragraph(fmt.Sprintf("\nRun a long-lived session behind an HTTP API with %s, merged WAV downloads and Prometheus metrics. "+
		"With a local engine the worker is also offered on /synth over WebSocket and optionally over NATS.", keyword("status, generation"))),
	Example: paragraph("ttsgen serve\nttsgen serve --addr :8080 --play\nTTSGEN_SERVER_NATS=true TTSGEN_SERVER_EMBEDDED_NATS=true ttsgen serve"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().Bool("play", false, "play generated audio on this machine")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logToStderr()
	applyLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	play, _ := cmd.Flags().GetBool("play")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	local := cfg.Engine == config.EngineTone || cfg.Engine == config.EnginePiper

	var cl closers
	fail := func(err error) error {
		_ = cl.Close()
		return err
	}

	// The session, the WebSocket bridge and the NATS responder each get a
	// worker of their own; they share the chunk cache.
	var ch synth.Channel
	var newLocalWorker func() (*synth.Worker, error)
	if local {
		c, err := workerCache(cfg, !noCache, &cl)
		if err != nil {
			return fail(err)
		}
		newLocalWorker = func() (*synth.Worker, error) { return newWorker(cfg, c) }
		w, err := newLocalWorker()
		if err != nil {
			return fail(err)
		}
		ch = synth.NewLocalChannel(w)
	} else {
		var err error
		if ch, err = openChannel(ctx, cfg, !noCache, &cl); err != nil {
			return fail(err)
		}
	}

	var opts []server.Option
	if local {
		w, err := newLocalWorker()
		if err != nil {
			return fail(err)
		}
		opts = append(opts, server.WithBridge(synth.NewWSBridge(w, log.WithPrefix("bridge"))))

		if cfg.Server.NATS {
			if err := serveNATS(&cl, newLocalWorker); err != nil {
				return fail(err)
			}
		}
	} else if cfg.Server.NATS {
		log.Warn("server.nats needs a local engine, not serving over NATS", "engine", cfg.Engine)
	}

	var out playback.Output
	if play {
		out = playback.NewOtoOutput(cfg.DeviceBuffer, log.WithPrefix("oto"))
	} else {
		v := playback.NewVirtualOutput()
		clockCtx, cancel := context.WithCancel(context.Background())
		go v.Run(clockCtx, 20*time.Millisecond)
		cl.add(func() error { cancel(); return nil })
		out = v
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	rt, err := newRuntime(startCtx, cfg, ch, out, play, cl)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()

	watchConfig(rt)

	if rt.history != nil {
		opts = append(opts, server.WithHistory(rt.history))
	}
	opts = append(opts, server.WithLogger(log.WithPrefix("http")))
	h := server.NewHandler(rt.session, opts...)
	return server.Serve(ctx, cfg.Server.Addr, h.Router(), log.WithPrefix("http"))
}

// serveNATS answers synthesis requests on the configured subject, starting
// an in-process broker when asked to.
func serveNATS(cl *closers, newLocalWorker func() (*synth.Worker, error)) error {
	url := cfg.Remote.NATSURL
	if cfg.Server.EmbeddedNATS {
		ns, err := synth.StartEmbeddedNATS("127.0.0.1", cfg.Server.NATSPort, log.WithPrefix("nats-server"))
		if err != nil {
			return err
		}
		cl.add(func() error { ns.Shutdown(); return nil })
		url = ns.ClientURL()
	}

	conn, err := nats.Connect(url, nats.Name(config.AppName+"-worker"))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	cl.add(func() error { conn.Close(); return nil })

	w, err := newLocalWorker()
	if err != nil {
		return err
	}
	responder, err := synth.ServeNATS(conn, cfg.Remote.Subject, w, log.WithPrefix("responder"))
	if err != nil {
		return err
	}
	cl.add(responder.Close)
	return nil
}

// watchConfig applies log level and volume changes without a restart.
// Other settings need one.
func watchConfig(rt *runtime) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		next, err := config.LoadFromViper()
		if err != nil {
			log.Warn("ignoring config change", "file", e.Name, "err", err)
			return
		}
		if next.LogLevel != cfg.LogLevel {
			applyLogLevel(next.LogLevel)
		}
		if next.Volume != cfg.Volume {
			rt.session.Player().SetVolume(next.Volume)
		}
		log.Info("config reloaded", "file", e.Name, "log_level", next.LogLevel, "volume", next.Volume)
		cfg.LogLevel, cfg.Volume = next.LogLevel, next.Volume
	})
	viper.WatchConfig()
}
