package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
)

// Resolve authenticates one request from its raw access and refresh token
// values (either may be empty).
//
// A valid access token whose session version is current resolves without
// touching the session store. Otherwise, if a refresh token is present, it is
// rotated: the Resolution then has Rotated set and carries a new pair that the
// caller must persist. Resolve can therefore mutate state and must not be
// called twice with the same refresh token for one request.
func (e *Engine) Resolve(ctx context.Context, accessToken, refreshToken string) Resolution {
	if !e.ready() {
		return Resolution{Reason: ReasonTransientError, Err: ErrEngineNotReady}
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricResolveLatency, time.Since(start))
		}()
	}

	res := e.flowsvc.Resolve(ctx, accessToken, refreshToken)

	var err error
	switch res.Failure {
	case flows.ResolveFailureNone:
		if !res.Rotated {
			e.metricInc(MetricResolveAccess)
			return Resolution{Context: authContextFrom(res.Access, SourceAccessToken)}
		}
		pair, authCtx, rerr := e.finishRotate(ctx, *res.Rotate)
		if rerr == nil {
			e.metricInc(MetricResolveRotated)
			return Resolution{Context: authCtx, Tokens: pair, Rotated: true}
		}
		err = rerr
	case flows.ResolveFailureMissing:
		err = ErrTokenMissing
	case flows.ResolveFailureAccessExpired:
		err = ErrExpiredAccessToken
	case flows.ResolveFailureStaleVersion:
		e.metricInc(MetricStaleSessionVersion)
		err = ErrStaleSessionVersion
	case flows.ResolveFailureTransient:
		e.metricInc(MetricTransientStoreError)
		e.logger.Warn(ctx, "session version lookup failed", "error", res.Err)
		err = ErrTransientStore
	case flows.ResolveFailureRefresh:
		_, _, err = e.finishRotate(ctx, *res.Rotate)
	default:
		err = ErrInvalidAccessToken
	}

	e.metricInc(MetricResolveFailure)
	return Resolution{Reason: ReasonFor(err), Err: err}
}

// Refresh exchanges a refresh token for a new pair in the same family.
//
// Presenting a token that was already rotated away returns [ErrReuseDetected]
// after revoking every record of its family, including the newest one.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, AuthContext, error) {
	if !e.ready() {
		return TokenPair{}, AuthContext{}, ErrEngineNotReady
	}
	return e.finishRotate(ctx, e.flowsvc.Rotate(ctx, refreshToken))
}

func (e *Engine) finishRotate(ctx context.Context, res flows.RotateResult) (TokenPair, AuthContext, error) {
	if rev := res.Revocation; rev != nil {
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rev.UserID, rev.FamilyID, rev.RecordID, ErrReuseDetected, nil)
		if rev.Err == nil {
			e.emitFamilyRevoked(ctx, rev.UserID, rev.FamilyID, rev.RecordID, rev.Revoked, auditEventRefreshReuseDetected)
		}
	}

	if res.Failure == flows.RotateFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.FamilyID, res.Record.ID, nil, nil)
		pair := TokenPair{
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			AccessExpiresAt:  res.Access.ExpiresAt.Time,
			RefreshExpiresAt: res.Record.ExpiresAt,
		}
		return pair, authContextFrom(res.Access, SourceRefreshToken), nil
	}

	e.metricInc(MetricRefreshFailure)

	var err error
	switch res.Failure {
	case flows.RotateFailureExpired:
		err = ErrExpiredRefreshToken
	case flows.RotateFailureUnknown:
		err = ErrUnknownRefreshToken
	case flows.RotateFailureReuse:
		err = ErrReuseDetected
	case flows.RotateFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, res.FamilyID, "", ErrRefreshRateLimited, nil)
		err = ErrRefreshRateLimited
	case flows.RotateFailureTransient:
		e.metricInc(MetricTransientStoreError)
		e.logger.Warn(ctx, "refresh rotation backend failure",
			"user_id", res.UserID,
			"family_id", res.FamilyID,
			"error", res.Err,
		)
		err = ErrTransientStore
	case flows.RotateFailureIssue:
		e.logger.Error(ctx, "refresh token minting failed",
			"user_id", res.UserID,
			"family_id", res.FamilyID,
			"error", res.Err,
		)
		err = ErrSessionCreation
	default:
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.FamilyID, "", ErrInvalidRefreshToken, nil)
		err = ErrInvalidRefreshToken
	}
	return TokenPair{}, AuthContext{}, err
}

func authContextFrom(claims *jwt.AccessClaims, source TokenSource) AuthContext {
	if claims == nil {
		return AuthContext{}
	}
	out := AuthContext{
		UserID:         claims.Subject,
		Email:          claims.Email,
		FamilyID:       claims.FamilyID,
		SessionVersion: claims.SessionVersion,
		Source:         source,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
