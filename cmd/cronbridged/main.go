// Command cronbridged runs the scheduling daemon: it wires the cron
// engine, source reader, payload fetcher, queue enqueuer, internal
// work queue, scheduler index, and the review/refresh/timer/IPC
// workers together, and runs until signalled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/enqueue"
	"cronbridge/internal/ipc"
	"cronbridge/internal/metrics"
	"cronbridge/internal/payload"
	"cronbridge/internal/refresh"
	"cronbridge/internal/review"
	"cronbridge/internal/schedindex"
	"cronbridge/internal/source"
	"cronbridge/internal/timer"
	"cronbridge/internal/workqueue"
)

func main() {
	configPath := "/etc/cronbridge/cronbridge.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := cronbridge.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(exitCode(err))
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger()
}

// exitCode maps a fatal error to the codes documented in spec §6:
// 1 for configuration/bind errors, 2 for an unrecoverable store error
// at startup.
func exitCode(err error) int {
	if _, ok := err.(*storeError); ok {
		return 2
	}
	return 1
}

type storeError struct{ error }

func run(cfg *cronbridge.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return &storeError{fmt.Errorf("connecting to postgres: %w", err)}
	}
	defer pool.Close()

	src := source.New(pool)
	fetcher := payload.New(cfg.WebserverIP, cfg.WebserverPort, cfg.WebserverToken, cfg.PayloadFetchTimeout())
	enqueuer := enqueue.New(cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

	queue := workqueue.New()
	index := schedindex.New()

	reviewer := review.New(queue, src, fetcher, enqueuer, index, log)
	refresher := refresh.New(queue, src, cfg.FullRefreshInterval(), log)
	timerLoop := timer.New(index, queue, src, fetcher, enqueuer, cfg.SchedulerPollInterval(), log)
	ipcServer := ipc.New(cfg.SocketPath, cfg.SocketFileGroupOwner, queue, index, src, fetcher, enqueuer, refresher, log)

	var wg sync.WaitGroup
	startGuarded := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runGuarded(ctx, log, name, fn)
		}()
	}

	// The first refresh pass runs synchronously here, before the review
	// worker starts draining (spec §4.8). refresher.Run opens with a
	// pass of its own, so it is started one interval later.
	refresher.Once(ctx)
	startGuarded("refresh", func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.FullRefreshInterval()):
		}
		refresher.Run(ctx)
	})
	startGuarded("review", reviewer.Run)
	startGuarded("timer", timerLoop.Run)

	// A bind failure of the IPC listener is fatal: it shuts the daemon
	// down and run returns the error (exit code 1).
	ipcErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ipcServer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("ipc listener exited")
			ipcErr <- err
			stop()
		}
	}()

	if cfg.MetricsListenAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.MetricsListenAddr); err != nil {
				log.Warn().Err(err).Msg("metrics server exited")
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("systemd notify failed")
	} else if ok {
		log.Debug().Msg("notified systemd readiness")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("shutdown deadline exceeded, exiting anyway")
	}
	select {
	case err := <-ipcErr:
		return err
	default:
	}
	return nil
}

// runGuarded runs fn once and restarts it if it panics, logging the
// panic at ERROR, until ctx is cancelled (spec §7: "an unexpected
// panic in a worker is caught at the thread boundary... and the
// worker is restarted").
func runGuarded(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context)) {
	for {
		if ctx.Err() != nil {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("worker", name).Msg("worker panicked, restarting")
				}
			}()
			fn(ctx)
		}()
		if ctx.Err() != nil {
			return
		}
	}
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error
	for n := 0; n < 3; n++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			return pool, nil
		}
		time.Sleep(time.Duration(n+1) * time.Second)
	}
	return nil, err
}
