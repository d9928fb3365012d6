// Command investigator-server hosts the investigation relay and a
// simulated worker pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/procurewatch/investigator/internal/config"
	"github.com/procurewatch/investigator/internal/logging"
	"github.com/procurewatch/investigator/internal/metrics"
	"github.com/procurewatch/investigator/internal/pipeline"
	"github.com/procurewatch/investigator/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath        string
	port              int
	logLevel          string
	generateToken     bool
	maxInvestigations int
	awaitClient       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "investigator-server",
	Short: "Serve the investigation relay",
	Long: `Serve the investigation relay.

POST /api/investigate starts a simulated investigation of a tender and
returns a session id. Observations stream to websocket clients connected
at /api/ws/{session_id}.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Override server port")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Override log level (trace, debug, info, warn, error, off)")
	rootCmd.Flags().BoolVar(&generateToken, "generate-token", false, "Generate a random auth token when none is configured")
	rootCmd.Flags().IntVar(&maxInvestigations, "max-investigations", 16, "Concurrent investigation limit (0 = unbounded)")
	rootCmd.Flags().DurationVar(&awaitClient, "await-client", 30*time.Second, "How long an investigation waits for its first channel client")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})

	if cfg.Server.AuthToken == "" && generateToken {
		token, err := config.GenerateToken()
		if err != nil {
			return err
		}
		cfg.Server.AuthToken = token
		log.Info().Str("token", token).Msg("generated auth token")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	hub := ws.NewHub(cfg.Server.MaxConnections, m, logging.Component("hub"))
	runner := pipeline.NewRunner(hub, pipeline.Options{
		Tasks:        cfg.Pipeline.Tasks,
		StepInterval: cfg.Pipeline.StepInterval,
		FailureRate:  cfg.Pipeline.FailureRate,
		CrashRate:    cfg.Pipeline.CrashRate,
		Seed:         cfg.Pipeline.Seed,
		AwaitClient:  awaitClient,
		Logger:       logging.Component("pipeline"),
		Metrics:      m,
	})
	mgr := pipeline.NewManager(runner, maxInvestigations, log)
	mgr.OnDone(hub.Forget)

	srv := ws.NewServer(hub, mgr, m, ws.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("tasks", len(cfg.Pipeline.Tasks)).
		Dur("step_interval", cfg.Pipeline.StepInterval).
		Bool("auth", cfg.Server.AuthToken != "").
		Msg("starting investigator relay")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ws.ListenAndServe(gctx, cfg.Addr(), srv.Handler(), log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		mgr.Shutdown()
		hub.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
