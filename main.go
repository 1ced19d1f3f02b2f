package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"reconctl/internal/eventbus"
	"reconctl/internal/httpapi"
	"reconctl/internal/jobcore"
	"reconctl/internal/logx"
	"reconctl/internal/sqlitestore"
)

const (
	defaultDatabaseURL        = "reconctl.db"
	defaultMaxThreads         = 5
	defaultMaxDiscoverThreads = 32
	logRetentionDays          = 30
)

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func main() {
	log.Logger = zerolog.New(logx.NewRedactor(os.Stdout)).With().Timestamp().Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = defaultDatabaseURL
	}
	maxThreads := envInt("MAX_THREADS", defaultMaxThreads)
	maxDiscoverThreads := envInt("MAX_DISCOVER_THREADS", defaultMaxDiscoverThreads)

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=foreign_keys(1)", dbURL))
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	if err := sqlitestore.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate db")
	}
	repo := sqlitestore.New(db)

	hub := eventbus.New(log.Logger)
	go hub.Run()
	defer hub.Stop()

	state := jobcore.NewState(repo, hub, maxThreads, maxDiscoverThreads, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := jobcore.Recover(ctx, state); err != nil {
		log.Error().Err(err).Msg("crash recovery failed")
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if err := jobcore.StartDispatcher(ctx, state, scheduler); err != nil {
		log.Fatal().Err(err).Msg("start scheduled dispatcher")
	}
	scheduler.Every(1).Day().Do(func() {
		n, err := repo.CleanupOldLogs(ctx, logRetentionDays)
		if err != nil {
			log.Error().Err(err).Msg("cleanup old logs")
			return
		}
		log.Info().Int("removed", n).Msg("cleaned up old logs")
	})

	router := httpapi.New(state, hub, log.Logger)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	scheduler.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
