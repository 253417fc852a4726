// Command server runs the storegate identity gateway: session lifecycle
// endpoints, the hardened admin surface, and the OAuth callback for the
// storefront.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"storegate/internal/audit"
	"storegate/internal/gateway"
	"storegate/internal/oauth"
	"storegate/internal/platform/config"
	"storegate/internal/platform/httpserver"
	"storegate/internal/platform/logger"
	platformredis "storegate/internal/platform/redis"
	"storegate/internal/ratelimit"
	"storegate/internal/session"
	transporthttp "storegate/internal/transport/http"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Production())
	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealKey, err := cfg.SealKey()
	if err != nil {
		return err
	}
	sealer, err := oauth.NewSealer(sealKey)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Session store: Redis when configured, Postgres next, memory fallback.
	var (
		sessions session.Store
		sweep    func(context.Context) error
	)
	switch {
	case redisClient != nil:
		sessions = session.NewRedis(redisClient.Client,
			session.WithRedisTTL(cfg.Session.TTL),
			session.WithRedisMaxLifetime(cfg.Session.MaxLifetime),
		)
		log.Info("session store: redis")
	case cfg.PostgresURL != "":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, session.Schema); err != nil {
			return fmt.Errorf("apply session schema: %w", err)
		}
		store := session.NewPostgres(pool,
			session.WithPostgresTTL(cfg.Session.TTL),
			session.WithPostgresMaxLifetime(cfg.Session.MaxLifetime),
		)
		sessions = store
		sweep = func(ctx context.Context) error {
			return sweepLoop(ctx, store, cfg.Session.SweepInterval, log)
		}
		log.Info("session store: postgres")
	default:
		store := session.NewMemory(
			session.WithTTL(cfg.Session.TTL),
			session.WithMaxLifetime(cfg.Session.MaxLifetime),
		)
		sessions = store
		sweep = func(ctx context.Context) error {
			return store.Sweep(ctx, cfg.Session.SweepInterval)
		}
		log.Info("session store: memory")
	}

	// Security events always hit the log; Kafka and the Postgres archive are
	// additive when configured.
	emitters := audit.Fanout{audit.NewSlog(log)}
	var kafkaPub *audit.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()
		if err := audit.EnsureTopic(ctx, kafkaClient, cfg.KafkaTopic, 3); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		kafkaPub = audit.NewKafka(kafkaClient, log, audit.WithTopic(cfg.KafkaTopic))
		emitters = append(emitters, kafkaPub)
		log.Info("audit: kafka publisher enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.AuditPostgresURL != "" {
		archive, err := audit.OpenArchive(cfg.AuditPostgresURL, log)
		if err != nil {
			return fmt.Errorf("open audit archive: %w", err)
		}
		defer archive.Close()
		emitters = append(emitters, archive)
		log.Info("audit: postgres archive enabled")
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient.Client, cfg.RateLimit, cfg.RateWindow)
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimit, cfg.RateWindow)
	}

	backend := gateway.NewHTTPBackend(cfg.BackendURL, gateway.WithTimeout(cfg.BackendTimeout))
	provider := oauth.NewOIDCProvider(
		cfg.OAuth.Provider,
		cfg.OAuth.TokenURL,
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.RedirectURL,
	)

	resolver := gateway.NewResolver(log, emitters,
		gateway.NewSessionSource(sessions),
		gateway.NewCookieTokenSource(nil),
	)
	adminResolver := gateway.NewResolver(log, emitters,
		gateway.NewSessionSource(sessions),
		gateway.NewBackendSource(backend, nil),
	)

	router := transporthttp.New(transporthttp.Deps{
		Logger:        log,
		Sessions:      sessions,
		Resolver:      resolver,
		AdminResolver: adminResolver,
		Limiter:       limiter,
		Flow:          oauth.NewFlow(provider, backend, sessions, sealer, emitters, log),
		Events:        emitters,
		SecureCookies: cfg.Production(),
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting storegate", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sweep != nil {
		g.Go(func() error {
			if err := sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if kafkaPub != nil {
		g.Go(func() error {
			return kafkaPub.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("storegate stopped")
	return nil
}

// sweepLoop reaps expired Postgres sessions on an interval. The memory store
// ships its own sweeper; Postgres gets the same treatment here.
func sweepLoop(ctx context.Context, store *session.PostgresStore, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := store.DeleteExpired(ctx); err != nil {
				log.WarnContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
