/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/eos/internal/chainmgr"
	"github.com/friendsincode/eos/internal/config"
	"github.com/friendsincode/eos/internal/datamgr"
	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/eventbus"
	"github.com/friendsincode/eos/internal/events"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/logging"
	"github.com/friendsincode/eos/internal/loopback"
	"github.com/friendsincode/eos/internal/playback"
	"github.com/friendsincode/eos/internal/player"
	"github.com/friendsincode/eos/internal/server"
	"github.com/friendsincode/eos/internal/settings"
	"github.com/friendsincode/eos/internal/telemetry"
	"github.com/friendsincode/eos/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	flagBind          string
	flagPort          int
	flagLogLevel      string
	flagSettings      string
	flagLockTimeout   time.Duration
	flagLoopbackDelay time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "eosd",
	Short: "EOS playback engine",
	Long:  "eosd runs the EOS playback orchestration engine behind a local HTTP control API.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and the control API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eosd %s (%#016x)\n", version.String(), version.Packed())
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flagBind, "http-bind", "", "control API bind address (overrides EOS_HTTP_BIND)")
	f.IntVar(&flagPort, "http-port", 0, "control API port (overrides EOS_HTTP_PORT)")
	f.StringVar(&flagLogLevel, "log-level", "", "log level (overrides EOS_LOG_LEVEL)")
	f.StringVar(&flagSettings, "settings", "", "output settings snapshot (overrides EOS_SETTINGS_PATH)")
	f.DurationVar(&flagLockTimeout, "lock-timeout", 0, "source connect timeout (overrides EOS_LOCK_TIMEOUT)")
	f.DurationVar(&flagLoopbackDelay, "loopback-delay", 50*time.Millisecond, "connect delay of the loopback source")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and layers the serve flags on top.
func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("http-bind") {
		cfg.HTTPBind = flagBind
	}
	if flags.Changed("http-port") {
		cfg.HTTPPort = flagPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("settings") {
		cfg.SettingsPath = flagSettings
	}
	if flags.Changed("lock-timeout") {
		cfg.LockTimeout = flagLockTimeout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate flags: %w", err)
	}

	logger = logging.Setup(cfg.Environment, cfg.LogLevel)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	nodeID := cfg.InstanceID
	if nodeID == "" {
		nodeID = eventbus.NewNodeID()
	}
	logger = logger.With().Str("node_id", nodeID).Logger()
	logger.Info().Str("version", version.String()).Msg("EOS starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "eosd",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	sources := link.NewSourceFactory(logger)
	sinks := link.NewSinkFactory(logger)
	if _, _, err := loopback.Register(logger, sources, sinks,
		loopback.SourceOptions{ConnectDelay: flagLoopbackDelay}, loopback.SinkOptions{}); err != nil {
		return err
	}

	set := settings.New(logger)
	defer set.Close()
	bus := events.NewBus()

	p, err := player.New(player.Config{
		Chains: chainmgr.Config{
			Sources:     sources,
			Sinks:       sinks,
			Playback:    playback.NewDefaultFactory(logger),
			Engines:     engine.NewDefaultFactory(logger),
			LockTimeout: cfg.LockTimeout,
			QueueLen:    cfg.QueueLen,
			DataManager: datamgr.Options{
				ManualTTXT:  cfg.ManualTTXT,
				ManualHbbTV: cfg.ManualHbbTV,
				ManualDSMCC: cfg.ManualDSMCC,
			},
		},
		Settings: set,
		Bus:      bus,
		Metrics:  metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize player: %w", err)
	}
	defer p.Close()

	if cfg.SettingsPath != "" {
		if err := set.Load(cfg.SettingsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", cfg.SettingsPath).Msg("settings snapshot not fully restored")
		}
		defer func() {
			if err := set.Save(cfg.SettingsPath); err != nil {
				logger.Error().Err(err).Str("path", cfg.SettingsPath).Msg("failed to save settings")
			}
		}()
	}

	relay := eventbus.NewRelay(bus, metrics, logger, forwarders(nodeID)...)
	srv := server.New(cfg.HTTPAddr(), server.Deps{Player: p, Settings: set, Bus: bus, Metrics: metrics}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully...")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(timeoutCtx)
	})

	err = g.Wait()
	logger.Info().Msg("EOS stopped")
	return err
}

// forwarders builds the configured external event buses. A bus that
// cannot be reached at startup is skipped.
func forwarders(nodeID string) []eventbus.Forwarder {
	var out []eventbus.Forwarder
	if cfg.NATSURL != "" {
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.Token = cfg.NATSToken
		nc.SubjectPrefix = cfg.NATSSubjectPrefix
		f, err := eventbus.NewNATSForwarder(nc, nodeID, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS forwarding disabled")
		} else {
			out = append(out, f)
		}
	}
	if cfg.RedisAddr != "" {
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		rc.Channel = cfg.RedisChannel
		out = append(out, eventbus.NewRedisForwarder(rc, nodeID, logger))
	}
	return out
}
