package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webhaul/webhaul/internal/agent"
	"github.com/webhaul/webhaul/internal/config"
	"github.com/webhaul/webhaul/internal/observability"
	"github.com/webhaul/webhaul/internal/server"
	"github.com/webhaul/webhaul/internal/server/handlers"
	"github.com/webhaul/webhaul/pkg/archive"
	"github.com/webhaul/webhaul/pkg/jobqueue"
	"github.com/webhaul/webhaul/pkg/jobstore"
	"github.com/webhaul/webhaul/pkg/notify"
	"github.com/webhaul/webhaul/pkg/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scraping job service",
	Long: `Start the HTTP server, the job scheduler, and the notification hub.

Configuration is read from webhaul.yaml (current directory,
~/.config/webhaul, or /etc/webhaul), overridable via WEBHAUL_* environment
variables and the flags below.

Example:
  webhaul serve
  webhaul serve --host 0.0.0.0 --port 9000
  WEBHAUL_QUEUE_CONCURRENCY=4 webhaul serve`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

// serveOverrides turns flags into runtime config overrides.
func serveOverrides() map[string]any {
	overrides := map[string]any{}
	srv := map[string]any{}
	if serveHost != "" {
		srv["host"] = serveHost
	}
	if servePort != 0 {
		srv["port"] = servePort
	}
	if len(srv) > 0 {
		overrides["server"] = srv
	}
	return overrides
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, serveOverrides())
	if err != nil {
		observability.CLILogger.Error("Failed to load configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger

	pol, err := policy.New(policy.Config{
		Allow: cfg.Targets.Allow,
		Deny:  cfg.Targets.Deny,
	})
	if err != nil {
		observability.CLILogger.Error("Invalid target policy", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid target policy", err)
	}

	hub := notify.NewHub(logger.Named("hub"))

	queueCfg := jobqueue.Config{
		Runner:       agent.New(nil),
		Hub:          hub,
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
		Retention:    cfg.Queue.Retention,
		Policy:       pol,
		Logger:       logger.Named("queue"),
	}

	if cfg.Queue.DataDir != "" {
		queueCfg.Store = jobstore.NewStore(cfg.Queue.DataDir)
		logger.Info("job record persistence enabled",
			zap.String("data_dir", cfg.Queue.DataDir))
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.New(ctx, archive.Config{
			Bucket:         cfg.Archive.Bucket,
			Prefix:         cfg.Archive.Prefix,
			Region:         cfg.Archive.Region,
			Endpoint:       cfg.Archive.Endpoint,
			Profile:        cfg.Archive.Profile,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			observability.CLILogger.Error("Failed to initialize result archive", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Result archive unavailable", err)
		}
		queueCfg.Archive = archiver
		logger.Info("result archiving enabled",
			zap.String("bucket", cfg.Archive.Bucket),
			zap.String("prefix", cfg.Archive.Prefix))
	}

	sched, err := jobqueue.New(queueCfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid queue configuration", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(runCtx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start scheduler", err)
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	registerHealthCheckers(sched, cfg)

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithJobService(sched),
		server.WithHub(hub),
		server.WithAdmissionRate(cfg.Admission.RatePerSecond, cfg.Admission.Burst),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout,
			cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout),
		server.WithLogger(logger),
	)

	logger.Info("webhaul starting",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.Int("concurrency", cfg.Queue.Concurrency))

	serveErr := srv.Run(runCtx)

	// Server is down; drain the scheduler before exiting.
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduler did not drain cleanly", zap.Error(err))
	}

	if serveErr != nil {
		observability.CLILogger.Error("Server exited with error", zap.Error(serveErr))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", serveErr)
	}

	logger.Info("webhaul stopped")
	return nil
}

// queueHealthChecker reports the scheduler's queue depth as a health detail.
type queueHealthChecker struct {
	sched *jobqueue.Scheduler
}

func (c queueHealthChecker) CheckHealth(_ context.Context) error {
	// Depth is informational; a deep queue is degraded service, not an
	// outage. The scheduler being reachable is the check.
	_ = c.sched.QueueDepth()
	return nil
}

// storeHealthChecker verifies the job record directory is writable.
type storeHealthChecker struct {
	store *jobstore.Store
}

func (c storeHealthChecker) CheckHealth(_ context.Context) error {
	if err := os.MkdirAll(c.store.RootDir(), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(c.store.RootDir(), ".healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func registerHealthCheckers(sched *jobqueue.Scheduler, cfg *config.Config) {
	hm := handlers.DefaultHealthManager()
	hm.RegisterChecker("queue", queueHealthChecker{sched: sched})
	if cfg.Queue.DataDir != "" {
		hm.RegisterChecker("store", storeHealthChecker{store: jobstore.NewStore(cfg.Queue.DataDir)})
	}
}
