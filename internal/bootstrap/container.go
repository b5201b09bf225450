// Package bootstrap assembles the matching service from configuration. The
// worker and matchctl share the same dependency graph through Container.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/afterschool-matching/config"
	"github.com/alem-hub/afterschool-matching/internal/application/command"
	"github.com/alem-hub/afterschool-matching/internal/application/pairing"
	"github.com/alem-hub/afterschool-matching/internal/application/query"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/messaging"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/service"
	"github.com/alem-hub/afterschool-matching/pkg/circuitbreaker"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
	"github.com/alem-hub/afterschool-matching/pkg/retry"
)

// ErrDatabaseURLRequired is returned when no database is configured.
var ErrDatabaseURLRequired = errors.New("bootstrap: DATABASE_URL is required")

// Container holds the wired service.
type Container struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics

	DB *postgres.Connection

	// Cache is nil when Redis is disabled or unreachable.
	Cache *redis.Cache

	Bus       shared.EventBus
	Source    *service.ResilientSource
	Scorer    *pairing.Scorer
	Proposals *postgres.ProposalRepository
	Audit     *postgres.AuditRepository

	ProposeAssignments *command.ProposeAssignmentsHandler
	ApplyProposal      *command.ApplyProposalHandler
	CancelProposal     *command.CancelProposalHandler
	IngestProfile      *command.IngestProfileHandler
	BatchAnalyze       *query.BatchAnalyzeHandler
	GetCompatibility   *query.GetCompatibilityHandler

	closers []func()
}

// New connects to the stores and wires every handler. On error everything
// opened so far is closed. reg may be nil to use the default registerer.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (_ *Container, err error) {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Container{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(reg, ""),
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := c.connectDatabase(ctx, reg); err != nil {
		return nil, err
	}
	c.connectRedis()
	c.setupEventBus(ctx)
	c.setupSource()

	profiles := postgres.NewProfileRepository(c.DB)
	c.Proposals = postgres.NewProposalRepository(c.DB)
	c.Audit = postgres.NewAuditRepository(c.DB)

	auditRetrier := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
	)
	if err := messaging.NewAuditSubscriber(c.Audit, auditRetrier, log).Register(c.Bus); err != nil {
		return nil, fmt.Errorf("register audit subscriber: %w", err)
	}

	c.Scorer = pairing.NewScorer(c.Source, nil, pairing.Config{
		WorkerPoolSize: cfg.Matching.WorkerPoolSize,
		AverageLoad:    cfg.Matching.AverageLoad,
	}, c.Metrics, log)

	var invalidator command.ProfileCacheInvalidator
	if c.Cache != nil {
		invalidator = redis.NewProfileCache(c.Cache, cfg.Profiles.CacheTTL)
	}

	c.ProposeAssignments = command.NewProposeAssignmentsHandler(profiles, c.Scorer, c.Proposals, c.Bus, c.Metrics, log)
	c.ApplyProposal = command.NewApplyProposalHandler(c.Proposals, c.Bus, c.Metrics, log)
	c.CancelProposal = command.NewCancelProposalHandler(c.Proposals, c.Bus, c.Metrics, log)
	c.IngestProfile = command.NewIngestProfileHandler(profiles, service.NewProfileValidator(), invalidator, c.Bus, log)
	c.BatchAnalyze = query.NewBatchAnalyzeHandler(profiles, c.Scorer, c.Metrics, log)
	c.GetCompatibility = query.NewGetCompatibilityHandler(c.Scorer)

	return c, nil
}

func (c *Container) connectDatabase(ctx context.Context, reg prometheus.Registerer) error {
	db := c.Config.Database
	if db.URL == "" {
		return ErrDatabaseURLRequired
	}

	pgCfg := postgres.DefaultConfig(db.URL)
	if db.MaxOpenConns > 0 {
		pgCfg.MaxConns = int32(db.MaxOpenConns)
	}
	if db.MaxIdleConns > 0 {
		pgCfg.MinConns = int32(db.MaxIdleConns)
	}
	pgCfg.MaxConnLifetime = db.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = db.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return err
	}
	c.DB = conn
	c.closers = append(c.closers, conn.Close)
	c.Log.Info("database connection established")

	pool := postgres.NewPoolCollector(conn, metrics.DefaultNamespace)
	if err := reg.Register(pool); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	c.closers = append(c.closers, func() { reg.Unregister(pool) })

	if db.AutoMigrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		c.Log.Info("database schema is up to date", logger.Int("applied", n))
	}
	return nil
}

// connectRedis runs without the cache, lock and fan-out when Redis is
// unreachable; profiles are then read straight from Postgres.
func (c *Container) connectRedis() {
	rc := c.Config.Redis
	if rc.Disabled {
		c.Log.Info("redis disabled, running without profile cache")
		return
	}

	cache, err := redis.NewCache(redis.Config{
		URL:          rc.URL,
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		MaxRetries:   3,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	if err != nil {
		c.Log.Warn("failed to connect to redis, caching disabled", logger.Err(err))
		return
	}
	c.Cache = cache
	c.closers = append(c.closers, func() { _ = cache.Close() })
	c.Log.Info("redis connection established")
}

// setupEventBus delivers synchronously so that the audit write result is
// visible to ApplyProposal.
func (c *Container) setupEventBus(ctx context.Context) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = c.Log

	if c.Cache != nil {
		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client: c.Cache.Client(),
			Local:  local,
			Logger: c.Log,
		})
		if err == nil {
			c.Bus = bus
			c.closers = append(c.closers, func() { _ = bus.Close() })
			return
		}
		c.Log.Warn("failed to subscribe to redis events, using local bus", logger.Err(err))
	}

	bus := messaging.NewInMemoryEventBus(local)
	c.Bus = bus
	c.closers = append(c.closers, func() { _ = bus.Close() })
}

func (c *Container) setupSource() {
	pc := c.Config.Profiles
	log := c.Log.Named("profile_source")

	breaker := circuitbreaker.ProfileStoreBreaker(
		pc.CircuitBreakerThreshold,
		pc.CircuitBreakerTimeout,
		pc.CircuitBreakerHalfOpenMax,
		shared.IsNotFound,
		func(name string, from, to circuitbreaker.State) {
			c.Metrics.BreakerState(name, int(to))
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)
	retrier := retry.ProfileStoreRetrier(pc.MaxRetries+1, pc.RetryBaseDelay, pc.RetryMaxDelay, service.IsRetryableFetch)

	opts := []service.SourceOption{
		service.WithRetrier(retrier),
		service.WithBreaker(breaker),
		service.WithStrictProfiles(c.Config.Matching.StrictProfiles),
		service.WithFetchTimeout(pc.FetchTimeout),
		service.WithSourceMetrics(c.Metrics),
		service.WithSourceLogger(log),
	}
	if c.Cache != nil {
		opts = append(opts, service.WithCache(redis.NewProfileCache(c.Cache, pc.CacheTTL)))
	}
	c.Source = service.NewResilientSource(postgres.NewProfileRepository(c.DB), opts...)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
