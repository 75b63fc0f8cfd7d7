package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/alexhritac/jellyfin-collection/internal/api"
	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/database"
	"github.com/alexhritac/jellyfin-collection/internal/history"
	"github.com/alexhritac/jellyfin-collection/internal/imdb"
	"github.com/alexhritac/jellyfin-collection/internal/jellyfin"
	"github.com/alexhritac/jellyfin-collection/internal/kometa"
	"github.com/alexhritac/jellyfin-collection/internal/library"
	"github.com/alexhritac/jellyfin-collection/internal/logger"
	"github.com/alexhritac/jellyfin-collection/internal/notification"
	"github.com/alexhritac/jellyfin-collection/internal/runner"
	"github.com/alexhritac/jellyfin-collection/internal/scheduler"
	"github.com/alexhritac/jellyfin-collection/internal/source"
	"github.com/alexhritac/jellyfin-collection/internal/startup"
	"github.com/alexhritac/jellyfin-collection/internal/tmdb"
	"github.com/alexhritac/jellyfin-collection/internal/trakt"
)

const historyRetention = 90 * 24 * time.Hour

func main() {
	// Secrets commonly live in a .env file next to the binary.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	daemon := flag.Bool("daemon", false, "run continuously on the configured cron schedule")
	libraryFilter := flag.String("library", "", "process only this library")
	collectionFilter := flag.String("collection", "", "process only this collection")
	dryRun := flag.Bool("dry-run", false, "compute changes without applying them")
	ignoreSchedule := flag.Bool("ignore-schedule", false, "process collections regardless of their schedule")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *dryRun {
		cfg.Runner.DryRun = true
	}
	if *ignoreSchedule {
		cfg.Runner.IgnoreSchedule = true
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

	log.Info().
		Str("version", config.Version).
		Bool("daemon", *daemon).
		Bool("dryRun", cfg.Runner.DryRun).
		Msg("starting jellyfin-collection")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	store := history.NewStore(db.Conn(), log.Logger)

	jellyfinClient := jellyfin.NewClient(cfg.Jellyfin, log.Logger)
	tmdbClient := tmdb.NewClient(cfg.TMDB, log.Logger)

	var traktSource source.TraktSource
	if traktClient := trakt.NewClient(cfg.Trakt, log.Logger); traktClient.IsConfigured() {
		traktSource = traktClient
	}
	var imdbSource source.IMDBSource
	if cfg.IMDB.Enabled {
		imdbSource = imdb.NewClient(cfg.IMDB, log.Logger)
	}

	index := library.NewIndex(jellyfinClient, log.Logger)
	matcher := library.NewMatcher(index, jellyfinClient, cfg.Runner.MatchWorkers, log.Logger)
	aggregator := source.NewAggregator(tmdbClient, traktSource, imdbSource, log.Logger)
	reconciler := collection.NewReconciler(jellyfinClient, cfg.Runner.DryRun, log.Logger)
	notifier := notification.NewService(cfg, &http.Client{Timeout: 15 * time.Second}, log.Logger)
	parser := kometa.NewParser(cfg.Runner.ConfigPath, log.Logger)

	run := runner.New(cfg, parser, jellyfinClient, aggregator, matcher, reconciler, notifier, store, log.Logger)

	probe := func(ctx context.Context) error {
		_, err := jellyfinClient.GetLibraries(ctx)
		return err
	}
	if err := startup.WaitForServer(context.Background(), startup.DefaultWaitConfig(), probe, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("media server unreachable")
	}

	if !*daemon {
		rep, err := run.Run(context.Background(), runner.Options{
			Trigger:        "manual",
			Library:        *libraryFilter,
			Collection:     *collectionFilter,
			DryRun:         cfg.Runner.DryRun,
			IgnoreSchedule: cfg.Runner.IgnoreSchedule,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("run failed")
		}
		if !rep.Succeeded() {
			log.Error().Strs("errors", rep.Errors).Msg("run finished with errors")
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	err = sched.Register(scheduler.JobConfig{
		ID:   "sync",
		Name: "Collection synchronization",
		Cron: cfg.Runner.Cron,
		Func: func(ctx context.Context) error {
			_, err := run.Run(ctx, runner.Options{
				Trigger:        "scheduled",
				DryRun:         cfg.Runner.DryRun,
				IgnoreSchedule: cfg.Runner.IgnoreSchedule,
			})
			return err
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register sync job")
	}

	err = sched.Register(scheduler.JobConfig{
		ID:   "history-prune",
		Name: "Run history cleanup",
		Cron: "30 4 * * *",
		Func: func(ctx context.Context) error {
			_, err := store.Prune(ctx, historyRetention)
			return err
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register cleanup job")
	}

	sched.Start()

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(run, store, sched, config.Version, log.Logger)
		go func() {
			if err := server.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("HTTP server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
	}
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown failed")
	}
}
