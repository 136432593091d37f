package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collectarr/collectarr/internal/api"
	"github.com/collectarr/collectarr/internal/backup"
	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/database"
	"github.com/collectarr/collectarr/internal/emby"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/mdblist"
	"github.com/collectarr/collectarr/internal/reconciler"
	"github.com/collectarr/collectarr/internal/refresher"
	"github.com/collectarr/collectarr/internal/scheduler"
	"github.com/collectarr/collectarr/internal/sorting"
	"github.com/collectarr/collectarr/internal/startup"
)

const passTaskID = "reconcile"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	oneshot := flag.Bool("oneshot", false, "Run a single pass and exit")
	backupDir := flag.String("backup", "", "Export per-user played/favorite state to this directory and exit")
	restoreFile := flag.String("restore", "", "Restore a played/favorite snapshot file and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("collectarr %s\n", config.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embyClient := emby.NewClient(cfg.Emby, log.Logger)
	listClient := mdblist.NewClient(cfg.MDBList, log.Logger)

	if *backupDir != "" || *restoreFile != "" {
		runBackup(ctx, embyClient, log, *backupDir, *restoreFile)
		return
	}

	log.Info().Str("version", config.Version).Msg("Starting collectarr")

	if err := checkConnectivity(ctx, embyClient, listClient, log); err != nil {
		log.Fatal().Err(err).Msg("Startup connectivity check failed")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate state database")
	}

	state := database.NewStore(db)
	rec := reconciler.New(listClient, embyClient, state, cfg.Sync, log.Logger)
	tagger := sorting.NewTagger(embyClient, log.Logger)
	refr := refresher.New(embyClient, cfg.Refresh, log.Logger)
	runner := reconciler.NewRunner(cfg, listClient, rec, tagger, refr, log.Logger)

	status := &api.Status{}
	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server, status, log.Logger)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	runPass := func(ctx context.Context) error {
		status.SetSummary(runner.Run(ctx))
		return nil
	}

	if *oneshot || cfg.Sync.HoursBetweenRefresh <= 0 {
		_ = runPass(ctx)
	} else {
		runScheduled(ctx, cfg, runPass, status, log)
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Status server shutdown failed")
		}
	}

	log.Info().Msg("collectarr stopped")
}

// checkConnectivity verifies both remote services are reachable before the
// first pass, retrying while the network comes up.
func checkConnectivity(ctx context.Context, embyClient *emby.Client, listClient *mdblist.Client, log *logger.Logger) error {
	retryCfg := startup.DefaultRetryConfig()

	err := startup.WithRetry(ctx, "emby connect", retryCfg, func() error {
		info, err := embyClient.SystemInfo(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("server", info.ServerName).Str("version", info.Version).Msg("Connected to Emby")
		return nil
	}, log.Logger)
	if err != nil {
		return err
	}

	return startup.WithRetry(ctx, "mdblist connect", retryCfg, func() error {
		info, err := listClient.UserInfo(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("requestsUsed", info.APIRequestsCount).
			Int("requestsLimit", info.APIRequests).
			Msg("Connected to MDBList")
		return nil
	}, log.Logger)
}

// runScheduled runs the pass on its configured interval until the context is
// cancelled. The first pass runs immediately.
func runScheduled(ctx context.Context, cfg *config.Config, runPass scheduler.TaskFunc, status *api.Status, log *logger.Logger) {
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	interval := time.Duration(cfg.Sync.HoursBetweenRefresh) * time.Hour
	task := func(taskCtx context.Context) error {
		err := runPass(taskCtx)
		if next, nerr := sched.NextRun(passTaskID); nerr == nil {
			status.SetNextRun(next)
		}
		return err
	}

	if err := sched.RegisterInterval(passTaskID, interval, task); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pass task")
	}

	sched.Start()
	if err := sched.RunNow(passTaskID); err != nil {
		log.Error().Err(err).Msg("Failed to trigger initial pass")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}
}

func runBackup(ctx context.Context, embyClient *emby.Client, log *logger.Logger, dir, file string) {
	b := backup.New(embyClient, log.Logger)

	if dir != "" {
		if err := b.Export(ctx, dir); err != nil {
			log.Fatal().Err(err).Msg("Backup failed")
		}
		return
	}
	if err := b.Restore(ctx, file); err != nil {
		log.Fatal().Err(err).Msg("Restore failed")
	}
}
