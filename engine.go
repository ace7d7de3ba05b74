package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/internal"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Engine issues, resolves, rotates and revokes dual-token sessions. Build
// one with [New] and share it; every method is safe for concurrent use.
type Engine struct {
	config       Config
	sessionStore session.Store
	redis        redis.UniversalClient
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       logging.Logger
	passwordHash *password.Argon2
	secretHash   *password.SecretHasher
	codec        *jwt.Codec
	userProvider UserProvider
	now          func() time.Time

	// dummyHash is verified against when a login identifier is unknown.
	dummyHash string
	flowsvc   flows.Service
}

// Close drains the audit dispatcher. It does not close the Redis client or
// database handle passed to the Builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flowsvc.Initialized() && e.userProvider != nil
}

// HashPassword returns an argon2id PHC string for plaintext.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	if e == nil || e.passwordHash == nil {
		return "", ErrEngineNotReady
	}
	return e.passwordHash.Hash(plaintext)
}

// VerifyPassword reports whether plaintext matches encoded. A malformed hash
// yields false.
func (e *Engine) VerifyPassword(plaintext, encoded string) bool {
	if e == nil || e.passwordHash == nil {
		return false
	}
	return e.passwordHash.Matches(plaintext, encoded)
}

// HashRefreshSecret returns the keyed digest stored as a refresh record's
// token hash.
func (e *Engine) HashRefreshSecret(secret string) string {
	if e == nil || e.secretHash == nil {
		return ""
	}
	return e.secretHash.Hash(secret)
}

func (e *Engine) initDummyHash() error {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return err
	}
	hash, err := e.passwordHash.Hash(secret)
	if err != nil {
		return err
	}
	e.dummyHash = hash
	return nil
}

func (e *Engine) loadIdentity(ctx context.Context, userID string) (flows.Identity, error) {
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.Identity{}, err
	}
	return flows.Identity{
		UserID:         user.UserID,
		Email:          user.Email,
		SessionVersion: user.SessionVersion,
	}, nil
}

func (e *Engine) currentSessionVersion(ctx context.Context, userID string) (uint64, error) {
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.SessionVersion, nil
}

func (e *Engine) lookupLoginUser(ctx context.Context, identifier string) (flows.LoginUser, error) {
	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.LoginUser{}, err
	}
	return flows.LoginUser{
		UserID:         user.UserID,
		Email:          user.Email,
		PasswordHash:   user.PasswordHash,
		SessionVersion: user.SessionVersion,
	}, nil
}

func (e *Engine) initFlows() {
	deps := flows.Deps{
		Rotate: flows.RotateDeps{
			Now:             e.now,
			VerifyRefresh:   e.codec.VerifyRefreshToken,
			HashSecret:      e.secretHash.Hash,
			ValidSecret:     internal.ValidRefreshSecret,
			NewSecret:       internal.NewRefreshSecret,
			NewRecordID:     internal.NewRecordID,
			LoadIdentity:    e.loadIdentity,
			Issuer:          e.codec,
			RefreshTTL:      e.codec.RefreshTTL(),
			Store:           e.sessionStore,
			Logger:          e.logger,
			ErrUserNotFound: ErrUserNotFound,
			ErrRateLimited:  rate.ErrRateLimited,
		},
		Resolve: flows.ResolveDeps{
			VerifyAccess:          e.codec.VerifyAccessToken,
			CurrentSessionVersion: e.currentSessionVersion,
			ErrUserNotFound:       ErrUserNotFound,
		},
		Begin: flows.BeginDeps{
			Now:         e.now,
			NewFamilyID: internal.NewFamilyID,
			NewRecordID: internal.NewRecordID,
			NewSecret:   internal.NewRefreshSecret,
			HashSecret:  e.secretHash.Hash,
			Issuer:      e.codec,
			RefreshTTL:  e.codec.RefreshTTL(),
			Store:       e.sessionStore,
		},
		Login: flows.LoginDeps{
			LookupUser:      e.lookupLoginUser,
			VerifyPassword:  e.passwordHash.Matches,
			DummyHash:       e.dummyHash,
			ErrUserNotFound: ErrUserNotFound,
			ErrRateLimited:  rate.ErrRateLimited,
		},
		Logout: flows.LogoutDeps{
			VerifyRefresh: e.codec.VerifyRefreshToken,
			HashSecret:    e.secretHash.Hash,
			ValidSecret:   internal.ValidRefreshSecret,
			Store:         e.sessionStore,
		},
		LogoutAll: flows.LogoutAllDeps{
			Store:              e.sessionStore,
			BumpSessionVersion: e.userProvider.BumpSessionVersion,
		},
		Sessions: e.sessionStore,
	}

	if e.rateLimiter != nil && e.config.RateLimit.EnableRefreshThrottle {
		deps.Rotate.RateLimiter = e.rateLimiter
	}
	if e.rateLimiter != nil && e.config.RateLimit.EnableLoginThrottle {
		deps.Login.RateLimiter = e.rateLimiter
	}

	e.flowsvc = flows.New(deps)
}
