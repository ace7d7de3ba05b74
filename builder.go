package goSession

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	postgres *sql.DB
	store    session.Store

	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for rate limiting and, unless another
// store is configured, for refresh records.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores refresh records in Postgres. Run [session.Migrate]
// against db before serving traffic.
func (b *Builder) WithPostgres(db *sql.DB) *Builder {
	b.postgres = db
	return b
}

// WithSessionStore sets a custom refresh-record store.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink delivers audit events to sink. Supplying a sink enables the
// dispatcher even when Config.Audit.Enabled is false.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger routes engine diagnostics to l. The default discards them.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the engine clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil && b.postgres != nil {
		store = session.NewPostgresStore(b.postgres, session.PostgresConfig{Now: now})
	}
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store required")
		}
		store = session.NewRedisStore(b.redis, session.RedisConfig{
			Prefix:    cfg.Session.RedisPrefix,
			Retention: cfg.Session.Retention,
			Now:       now,
		})
	}

	if b.redis == nil && (cfg.RateLimit.EnableLoginThrottle || cfg.RateLimit.EnableRefreshThrottle) {
		return nil, errors.New("rate limiting requires redis client")
	}

	engine := &Engine{
		config:       cfg,
		sessionStore: store,
		redis:        b.redis,
		userProvider: b.userProvider,
		now:          now,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                  cfg.Session.RedisPrefix,
			EnableIPThrottle:        cfg.RateLimit.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.RateLimit.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.RateLimit.RefreshCooldownDuration,
		})
	}

	engine.logger = logging.NewSlogLogger(b.logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	bufferSize := cfg.Audit.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultConfig().Audit.BufferSize
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled || b.auditSink != nil,
		BufferSize: bufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   internalaudit.SecurityTypes(),
		Logger:     engine.logger.With("component", "audit"),
	}, b.auditSink)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	sh, err := password.NewSecretHasher(cloneBytes(cfg.Refresh.HashKey))
	if err != nil {
		return nil, err
	}
	engine.secretHash = sh

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	if err := engine.initDummyHash(); err != nil {
		return nil, err
	}
	engine.initFlows()

	b.built = true

	return engine, nil
}
