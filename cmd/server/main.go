package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"invigil/internal/identity"
	"invigil/internal/platform/config"
	"invigil/internal/platform/httpserver"
	"invigil/internal/platform/logger"
	platformredis "invigil/internal/platform/redis"
	"invigil/internal/session"
	"invigil/internal/session/store/account"
	"invigil/internal/telemetry"
	"invigil/internal/telemetry/sink"
	httptransport "invigil/internal/transport/http"
)

const (
	shutdownGracePeriod = 10 * time.Second
	tokenIssuer         = "invigil"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session cache: redis when configured, in-process otherwise. The
	// in-process fallback keeps single-node deployments and local dev working
	// with identical semantics.
	var cache session.Cache = session.NewInMemoryCache()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		cache = session.NewRedisCache(redisClient.Client)
		defer redisClient.Close()
		log.Info("session cache backed by redis")
	} else {
		log.Warn("REDIS_URL not set, using in-process session cache")
	}

	var store account.Store = account.NewInMemoryStore()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = account.NewPostgresStore(db)
		log.Info("account store backed by postgres")
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory account store")
	}

	sinks := []sink.Sink{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka client init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("telemetry archived to kafka", "topic", cfg.KafkaTopic)
	} else {
		memSink := sink.NewMemorySink()
		sinks = append(sinks, memSink)
		log.Warn("KAFKA_BROKERS not set, telemetry sink is in-memory only")
	}

	authority := session.NewAuthority(store, cache, config.SessionCacheTTL, cfg.AuthorityTimeout, log)
	verifier := identity.NewVerifier(cfg.JWTSigningKey, tokenIssuer)

	ingestor := telemetry.NewIngestor(telemetry.IngestorConfig{
		Classifier: telemetry.NewClassifier(config.ViolationEscalationWindow),
		Heartbeats: telemetry.NewHeartbeatTracker(config.HeartbeatCadence),
		Sinks:      sinks,
		Logger:     log,
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Verifier:  verifier,
		Authority: authority,
		Ingestor:  ingestor,
		Logger:    log,
	})
	server := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ingestor.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
