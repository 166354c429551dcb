package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"fxcalsync/internal/caldav"
	"fxcalsync/internal/config"
	"fxcalsync/internal/google"
	"fxcalsync/internal/metrics"
	"fxcalsync/internal/news"
	"fxcalsync/internal/reconciler"
	"fxcalsync/internal/retry"
	"fxcalsync/internal/status"
	"fxcalsync/internal/syncer"
	"fxcalsync/internal/userstore"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fxcalsync",
		Usage: "Push the day's high impact forex news into each subscriber's calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"FXCALSYNC_CONFIG"}, Usage: "Optional YAML config file."},
		},
		Commands: []*cli.Command{
			syncCommand(),
			usersCommand(),
			eventsCommand(),
			configCommand(),
		},
	}
}

// loadConfig reads configuration and builds the logger every command uses.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.Log.Level, cfg.Log.Format), nil
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the calendar synchronization once, or on a cron schedule.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be written without touching any calendar."},
			&cli.StringFlag{Name: "events-file", Usage: "Read today's events from a JSON file instead of scraping."},
			&cli.StringFlag{Name: "schedule", Usage: "Cron expression, e.g. \"0 6 * * 1-5\". Overrides SCHEDULE."},
			&cli.StringFlag{Name: "status-addr", Usage: "Address for the status server in scheduled mode, e.g. \":9090\"."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			dryRun := c.Bool("dry-run")
			if dryRun {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			users, err := userstore.Open(ctx, cfg.DBFile)
			if err != nil {
				return err
			}
			defer users.Close()

			m := metrics.New()
			s, err := buildSyncer(cfg, logger, users, m, newsSource(cfg, logger, c.String("events-file")), dryRun)
			if err != nil {
				return err
			}
			run := func(ctx context.Context) (*syncer.Report, error) {
				ctx, cancel := context.WithTimeout(ctx, cfg.Sync.RunTimeout)
				defer cancel()
				return s.Run(ctx)
			}

			schedule := cfg.Schedule
			if c.IsSet("schedule") {
				schedule = c.String("schedule")
			}
			if schedule == "" {
				logger.Info("Running a single sync cycle.")
				if _, err := run(ctx); err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				return nil
			}

			addr := cfg.StatusAddr
			if c.IsSet("status-addr") {
				addr = c.String("status-addr")
			}
			return runScheduled(ctx, logger, cfg.Location, schedule, addr, status.NewServer(logger, m), run)
		},
	}
}

func buildSyncer(cfg *config.Config, logger *slog.Logger, users syncer.UserDirectory, m *metrics.Recorder, source news.Source, dryRun bool) (*syncer.Syncer, error) {
	oauthConfig, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, "")
	if err != nil {
		return nil, err
	}

	var backend google.BackendFunc
	switch cfg.Calendar.Backend {
	case config.BackendCalDAV:
		backend = caldav.Backend(logger, cfg.Calendar.CalDAVEndpoint, cfg.Calendar.CalDAVCalendar)
	default:
		backend = google.Backend(cfg.Calendar.CalendarID)
	}

	policy := retry.Policy{
		Attempts: cfg.Sync.RetryAttempt,
		Initial:  cfg.Sync.RetryInitial,
		Max:      cfg.Sync.RetryMax,
	}
	connector := google.NewConnector(logger, oauthConfig, backend, policy)
	rec := reconciler.New(logger, cfg.Location, policy, dryRun)

	return syncer.New(logger, source, users, connector, rec, cfg.Location, m, syncer.Options{
		Workers:     cfg.Sync.Workers,
		UserTimeout: cfg.Sync.UserTimeout,
	}), nil
}

func newsSource(cfg *config.Config, logger *slog.Logger, eventsFile string) news.Source {
	if eventsFile != "" {
		return news.FileSource{Path: eventsFile}
	}
	if cfg.News.Source == config.NewsFile {
		return news.FileSource{Path: cfg.News.File}
	}
	return news.NewForexFactory(logger, cfg.News.URL, cfg.News.Timeout)
}

// runScheduled triggers run on every cron tick until ctx is cancelled. Overlapping
// ticks are skipped while a run is still in progress.
func runScheduled(ctx context.Context, logger *slog.Logger, loc *time.Location, spec, addr string, srv *status.Server, run func(context.Context) (*syncer.Report, error)) error {
	cl := cronLogger{logger: logger}
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := scheduler.AddFunc(spec, func() {
		srv.RunStarted()
		report, err := run(ctx)
		srv.RunFinished(report, err)
		if err != nil {
			logger.Error("Scheduled sync failed.", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	errCh := make(chan error, 1)
	if addr != "" {
		go func() { errCh <- srv.ListenAndServe(ctx, addr) }()
	}

	scheduler.Start()
	logger.Info("Scheduler started.", "schedule", spec, "timezone", loc.String(), "next", scheduler.Entry(id).Next)

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	logger.Info("Stopping scheduler, waiting for the current run to finish.")
	<-scheduler.Stop().Done()
	return err
}

// cronLogger routes the scheduler's logs through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("Scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("Scheduler: "+msg, append(keysAndValues, "error", err)...)
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
