package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	gcs "cloud.google.com/go/storage"

	"github.com/0xBADBAC0N/ghcrawler/internal/api"
	"github.com/0xBADBAC0N/ghcrawler/internal/archive"
	"github.com/0xBADBAC0N/ghcrawler/internal/config"
	"github.com/0xBADBAC0N/ghcrawler/internal/crawler"
	"github.com/0xBADBAC0N/ghcrawler/internal/fetcher"
	"github.com/0xBADBAC0N/ghcrawler/internal/lock"
	"github.com/0xBADBAC0N/ghcrawler/internal/loop"
	"github.com/0xBADBAC0N/ghcrawler/internal/notify"
	"github.com/0xBADBAC0N/ghcrawler/internal/observability"
	"github.com/0xBADBAC0N/ghcrawler/internal/policy"
	"github.com/0xBADBAC0N/ghcrawler/internal/processor"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
	"github.com/0xBADBAC0N/ghcrawler/internal/store"
)

// processorVersion is bumped whenever handler logic changes meaning, so the
// policy engine can tell freshly-processed documents from stale ones.
const processorVersion = 1

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	obsProviders, err := observability.Init(context.Background(), observability.Config{
		Enabled:        cfg.ObservabilityEnabled,
		ServiceName:    cfg.CrawlerName,
		Environment:    cfg.AppEnv,
		MetricsAddress: cfg.MetricsAddr,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialise observability providers")
	}
	if obsProviders != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = obsProviders.Shutdown(ctx)
		}()
	}

	st, err := store.New(store.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to document store")
	}
	defer st.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	lockService := lock.NewRedisLock(redisClient, cfg.CrawlerName+":lock:")

	q, err := queue.NewAMQPSet(cfg.AMQPURL, cfg.AMQPPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to queue broker")
	}
	defer q.Close()

	f := fetcher.New(fetcher.Config{Token: cfg.GitHubToken, UserAgent: cfg.CrawlerName})
	pol := policy.NewEngine(processorVersion)
	proc := processor.New(processorVersion, pol, q)

	var archiver *archive.Archiver
	if cfg.DeadletterBucket != "" {
		gcsClient, err := gcs.NewClient(context.Background())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to construct GCS client, dead-letter archiving disabled")
		} else if a, err := archive.New(gcsClient, archive.Config{Bucket: cfg.DeadletterBucket}); err != nil {
			log.Warn().Err(err).Msg("Failed to construct archiver, dead-letter archiving disabled")
		} else {
			archiver = a
		}
	}

	cr := crawler.New(q, lockService, f, st, proc, pol, crawler.Config{
		OrgAllowlist: cfg.OrgAllowlist,
		Archiver:     archiver,
	})

	supervisor := loop.NewSupervisor(cr.Cycle)

	notifier := notify.New(cfg.SlackWebhookURL)

	watcher := config.NewWatcher("config.yaml", cfg.LoopCount, cfg.OrgAllowlist)
	watcher.OnCountChange(func(n int) {
		supervisor.SetTarget(n)
	})
	watcher.Watch()
	supervisor.SetTarget(watcher.Current().LoopCount)

	go monitorDeadLetters(context.Background(), q, notifier)

	apiServer := api.NewServer(supervisor, q, cfg.CrawlerName)
	var handler http.Handler = apiServer.Handler()
	if obsProviders != nil {
		handler = observability.WrapHandler(handler, obsProviders)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-stopCh
		log.Info().Msg("Shutting down...")
		supervisor.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Operator server forced to shutdown")
		}
		close(done)
	}()

	log.Info().Str("port", cfg.Port).Msg("Operator API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Operator server error")
	}

	<-done
	log.Info().Msg("Shutdown complete")
}

// monitorDeadLetters polls the dead queue's depth and alerts an operator
// when it grows past threshold. Archival itself happens inline, per-request,
// from the completion protocol's requeue path (see crawler.Config.Archiver);
// this loop only watches the aggregate depth left behind.
func monitorDeadLetters(ctx context.Context, q queue.Set, notifier *notify.Notifier) {
	const threshold = 50
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := q.Depths(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("monitorDeadLetters: failed to read queue depths")
				continue
			}
			depth := depths[queue.PriorityDead]
			if depth > threshold {
				notifier.DeadLetterThresholdCrossed(ctx, depth, threshold)
			}
		}
	}
}
