package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/csrf"
	"github.com/MrEthical07/tokenguard/encryption"
	"github.com/MrEthical07/tokenguard/internal"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/rate"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/tokenstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at build time; unknown identifiers are
// verified against it.
const dummyPassword = "tokenguard: no such account"

// Builder assembles an Engine from injected dependencies. A Builder is
// single-use: Build may succeed once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store        tokenstore.Store
	userProvider UserProvider
	auditSink    AuditSink
	alertSink    AlertSink
	logger       *zap.Logger
	now          func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Start from DefaultConfig.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used by the throttles and, when no store
// is given, by the default RedisStore.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the refresh record store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider is required: Build fails without one.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAlertSink replaces the default LogAlertSink.
func (b *Builder) WithAlertSink(sink AlertSink) *Builder {
	b.alertSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards output.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source used for token expiry and record timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled turns the in-process counters on or off. Call it after
// WithConfig, which replaces the whole configuration.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records refresh and validate latencies. It has no
// effect unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every service once and wires
// them into an Engine. Configuration problems wrap ErrConfiguration.
//
// Build may only be called once per Builder.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, configError("user provider required")
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, configError("token store or redis client required")
		}
		store = tokenstore.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix)
	}
	if (cfg.Security.EnableRefreshThrottle || cfg.Security.EnableLoginThrottle) && b.redis == nil {
		return nil, configError("throttles require a redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	alerts := b.alertSink
	if alerts == nil {
		alerts = NewLogAlertSink(logger)
	}

	// -------- CRYPTO --------
	box, err := encryption.New(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	tokens, err := NewTokenManager(cfg, box, now)
	if err != nil {
		return nil, err
	}

	var guard *csrf.Guard
	if cfg.CSRF.Enabled {
		guard, err = csrf.NewGuard(box, csrf.Options{
			TTL:        cfg.CSRF.TTL,
			Secure:     cfg.Security.ProductionMode,
			CookieName: cfg.CSRF.CookieName,
			HeaderName: cfg.CSRF.HeaderName,
			Now:        now,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	dummyHash, err := ph.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		box:          box,
		tokens:       tokens,
		csrf:         guard,
		store:        store,
		passwordHash: ph,
		userProvider: b.userProvider,
		alerts:       alerts,
		logger:       logger.Named("tokenguard"),
		now:          now,
		metrics:      NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
	}

	if b.redis != nil {
		limits := rate.Config{}
		if cfg.Security.EnableRefreshThrottle {
			limits.MaxRefreshAttempts = cfg.Security.MaxRefreshAttempts
			limits.RefreshWindow = cfg.Security.RefreshWindow
		}
		if cfg.Security.EnableLoginThrottle {
			limits.MaxLoginFailures = cfg.Security.MaxLoginAttempts
			limits.LoginWindow = cfg.Security.LoginWindow
		}
		engine.rateLimiter = rate.New(b.redis, limits)
	}

	// -------- FLOWS --------
	issue := flows.IssueDeps{
		CreateAccess: tokens.access.CreateAccess,
		NewSecret:    tokens.GenerateRefreshSecret,
		Seal:         tokens.seal,
		HashSecret:   internal.HashSecret,
		NewID:        uuid.NewString,
		Store:        store,
	}
	issueFn := func(ctx context.Context, u flows.User, deviceID string) (flows.IssuedPair, error) {
		return flows.RunIssue(ctx, u, deviceID, issue)
	}
	rotateFn := func(ctx context.Context, u flows.User, deviceID, parentHash string) (flows.IssuedPair, error) {
		return flows.RunIssueSuccessor(ctx, u, deviceID, parentHash, issue)
	}

	refreshDeps := flows.RefreshDeps{
		OpenEnvelope:     tokens.open,
		ValidateEnvelope: tokens.codec.Validate,
		HashSecret:       internal.HashSecret,
		Now:              now,
		GetUserByID:      engine.lookupUserByID,
		UserNotFound:     ErrUserNotFound,
		Issue:            rotateFn,
		ReuseDetected:    engine.onReuseDetected,
		Store:            store,
	}
	if cfg.Security.EnableRefreshThrottle && engine.rateLimiter != nil {
		refreshDeps.RateLimiter = engine.rateLimiter
	}

	loginDeps := flows.LoginDeps{
		GetUserByIdentifier: engine.lookupUserByIdentifier,
		UserNotFound:        ErrUserNotFound,
		VerifyPassword:      ph.Verify,
		DummyHash:           dummyHash,
		NewDeviceID:         uuid.NewString,
		Issue:               issueFn,
	}
	if cfg.Security.EnableLoginThrottle && engine.rateLimiter != nil {
		loginDeps.CheckLoginRate = engine.rateLimiter.CheckLogin
		loginDeps.RecordLoginFailure = engine.rateLimiter.RecordLoginFailure
		loginDeps.ResetLoginRate = engine.rateLimiter.ResetLogin
	}

	engine.flows = flows.New(flows.Deps{
		Issue:   issue,
		Refresh: refreshDeps,
		Login:   loginDeps,
		Logout: flows.LogoutDeps{
			OpenEnvelope: tokens.open,
			Now:          now,
			Store:        store,
		},
		Validate: flows.ValidateDeps{
			ParseAccess: tokens.access.ParseAccess,
		},
	})

	b.built = true

	return engine, nil
}
