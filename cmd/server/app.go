package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	authsvc "findiff/internal/auth/service"
	"findiff/internal/auth/store/revocation"
	"findiff/internal/auth/store/session"
	contentsvc "findiff/internal/content/service"
	articlestore "findiff/internal/content/store/article"
	authorstore "findiff/internal/content/store/author"
	bookstore "findiff/internal/content/store/book"
	"findiff/internal/events/publisher"
	"findiff/internal/events/relay"
	eventstore "findiff/internal/events/store"
	jwttoken "findiff/internal/jwt_token"
	kpisvc "findiff/internal/kpi/service"
	kpistore "findiff/internal/kpi/store"
	"findiff/internal/media"
	"findiff/internal/platform/config"
	"findiff/internal/platform/kafka"
	"findiff/internal/platform/metrics"
	"findiff/internal/platform/postgres"
	platformredis "findiff/internal/platform/redis"
	"findiff/internal/userprofile/catalog"
	upsvc "findiff/internal/userprofile/service"
	rolestore "findiff/internal/userprofile/store/role"
	userstore "findiff/internal/userprofile/store/user"
	workflowsvc "findiff/internal/workflow/service"
	"findiff/internal/workflow/store/claimlock"
	orderstore "findiff/internal/workflow/store/order"
	"findiff/internal/workflow/store/serial"
	"findiff/pkg/platform/tx"
)

// eventStore is both the event history and the outbox the relay drains.
type eventStore interface {
	publisher.Store
	relay.Outbox
}

// app holds the process-wide dependencies built from config.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sql.DB
	redis    *platformredis.Client
	producer *kafka.Producer

	metrics   *metrics.Metrics
	jwt       *jwttoken.JWTService
	users     *upsvc.Service
	auth      *authsvc.Service
	content   *contentsvc.Service
	kpi       *kpisvc.Service
	workflow  *workflowsvc.Service
	media     *media.Store
	publisher *publisher.Publisher
	relay     *relay.Relay
	// purger is set when revoked tokens live in Postgres and need sweeping.
	purger interface {
		PurgeExpired(ctx context.Context) (int64, error)
	}
}

// newApp connects the configured backends and builds every service. Modules
// fall back to in-memory stores when Postgres is not configured.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(prometheus.DefaultRegisterer)}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	cat, err := catalog.Load()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load permission catalog: %w", err)
	}

	var (
		runner   tx.Runner
		users    upsvc.UserStore
		roles    upsvc.RoleStore
		authors  contentsvc.AuthorStore
		books    contentsvc.BookStore
		articles contentsvc.ArticleStore
		kpis     kpisvc.Store
		orders   workflowsvc.OrderStore
		events   eventStore
		serials  workflowsvc.Sequence
		trl      authsvc.RevocationList
	)
	if a.db != nil {
		runner = tx.NewSQLRunner(a.db, cfg.Postgres.TxTimeout)
		users = userstore.NewPostgres(a.db)
		roles = rolestore.NewPostgres(a.db)
		authors = authorstore.NewPostgres(a.db)
		books = bookstore.NewPostgres(a.db)
		articles = articlestore.NewPostgres(a.db)
		kpis = kpistore.NewPostgres(a.db)
		orders = orderstore.NewPostgres(a.db)
		events = eventstore.NewPostgres(a.db)
		serials = serial.NewPostgres(a.db)
		pgTRL := revocation.NewPostgresTRL(a.db)
		trl = pgTRL
		a.purger = pgTRL
	} else {
		runner = tx.NewMemoryRunner()
		users = userstore.New()
		roles = rolestore.New()
		authors = authorstore.New()
		books = bookstore.New()
		articles = articlestore.New()
		kpis = kpistore.New()
		orders = orderstore.New()
		events = eventstore.NewInMemory()
		serials = serial.NewInMemory()
		trl = revocation.NewInMemoryTRL()
	}

	var (
		sessions authsvc.SessionStore = session.New()
		locks    workflowsvc.ClaimLock = claimlock.NewInMemory()
	)
	if a.redis != nil {
		sessions = session.NewRedis(a.redis.Client)
		locks = claimlock.NewRedis(a.redis.Client)
		trl = revocation.NewRedisTRL(a.redis.Client)
		a.purger = nil
		serials = serial.NewRedis(a.redis.Client)
	}

	a.users = upsvc.New(users, roles, cat,
		upsvc.WithLogger(logger),
		upsvc.WithMetrics(a.metrics),
		upsvc.WithTxRunner(runner),
	)

	a.jwt = jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	a.auth, err = authsvc.New(a.users, a.jwt, sessions, trl,
		authsvc.WithLogger(logger),
		authsvc.WithMetrics(a.metrics),
		authsvc.WithTokenTTL(cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build auth service: %w", err)
	}

	a.content = contentsvc.New(authors, books, articles,
		contentsvc.WithLogger(logger),
		contentsvc.WithTxRunner(runner),
		contentsvc.WithArticleReferences(orders),
	)
	a.kpi = kpisvc.New(kpis, a.users, kpisvc.WithLogger(logger))

	a.media, err = media.New(cfg.Media.Root, cfg.Media.MaxUploadBytes,
		media.WithLogger(logger),
		media.WithURLPrefix(cfg.Media.URLPrefix),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open media store: %w", err)
	}

	// Without Postgres there is no transaction to join, so events are written
	// off the request path.
	pubOpts := []publisher.Option{publisher.WithLogger(logger)}
	if a.db == nil {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(1024))
	}
	a.publisher = publisher.NewPublisher(events, pubOpts...)

	a.workflow = workflowsvc.New(orders, a.content, a.kpi, a.users,
		workflowsvc.WithLogger(logger),
		workflowsvc.WithTxRunner(runner),
		workflowsvc.WithClaimLock(locks),
		workflowsvc.WithSequence(serials),
		workflowsvc.WithEvents(a.publisher),
		workflowsvc.WithMedia(a.media),
		workflowsvc.WithMaxReturned(cfg.Workflow.MaxReturnedCount),
		workflowsvc.WithClaimLockTTL(cfg.Workflow.ClaimLockTTL),
	)

	if a.producer != nil {
		a.relay = relay.New(events, a.producer,
			relay.WithTxRunner(runner),
			relay.WithInterval(cfg.Kafka.PollInterval),
			relay.WithBatchSize(cfg.Kafka.BatchSize),
			relay.WithLogger(logger),
		)
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	if a.cfg.Postgres.Enabled() {
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		if a.cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		a.logger.Info("postgres connected")
	}

	rc, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		a.redis = rc
		a.logger.Info("redis connected")
	}

	producer, err := kafka.NewProducer(a.cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		a.producer = producer
		if err := producer.EnsureTopic(ctx, a.cfg.Kafka.Partitions, a.cfg.Kafka.Replication); err != nil {
			return err
		}
		a.logger.Info("kafka connected", "topic", a.cfg.Kafka.Topic)
	}
	return nil
}

// health reports each configured backend. An empty map means all are up.
func (a *app) health(ctx context.Context) map[string]string {
	failures := map[string]string{}
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			failures["postgres"] = err.Error()
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			failures["redis"] = err.Error()
		}
	}
	if a.producer != nil {
		if err := a.producer.Health(ctx); err != nil {
			failures["kafka"] = err.Error()
		}
	}
	return failures
}

// Close flushes buffered events and releases backend connections.
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close postgres", "error", err)
		}
	}
}
