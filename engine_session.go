package goSession

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// BeginSession starts a new refresh family for an already authenticated
// user and returns its first token pair.
func (e *Engine) BeginSession(ctx context.Context, user UserRecord) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if user.UserID == "" {
		return TokenPair{}, ErrUserNotFound
	}

	res := e.flowsvc.BeginSession(ctx, flows.Identity{
		UserID:         user.UserID,
		Email:          user.Email,
		SessionVersion: user.SessionVersion,
	})
	return e.finishBegin(ctx, user.UserID, res)
}

func (e *Engine) finishBegin(ctx context.Context, userID string, res flows.BeginResult) (TokenPair, error) {
	switch res.Failure {
	case flows.BeginFailureNone:
	case flows.BeginFailureTransient:
		e.metricInc(MetricTransientStoreError)
		e.logger.Warn(ctx, "session record creation failed", "user_id", userID, "error", res.Err)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrSessionCreation, ErrTransientStore)
	default:
		e.logger.Error(ctx, "session token minting failed", "user_id", userID, "error", res.Err)
		return TokenPair{}, ErrSessionCreation
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionStarted, true, userID, res.Record.FamilyID, res.Record.ID, nil, nil)

	return TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.Access.ExpiresAt.Time,
		RefreshExpiresAt: res.Record.ExpiresAt,
	}, nil
}

// Login verifies credentials through the [UserProvider] and begins a new
// session. Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, identifier, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	res := e.flowsvc.Login(ctx, identifier, password, ip)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.Session.Record.FamilyID, res.Session.Record.ID, nil, nil)
		return e.finishBegin(ctx, res.UserID, res.Session)
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, res.UserID, "", "", ErrLoginRateLimited, nil)
		return TokenPair{}, ErrLoginRateLimited
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", "", ErrInvalidCredentials, nil)
		return TokenPair{}, ErrInvalidCredentials
	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		return e.finishBegin(ctx, res.UserID, res.Session)
	default:
		e.metricInc(MetricLoginFailure)
		if res.Session.Failure != flows.BeginFailureNone {
			return e.finishBegin(ctx, res.UserID, res.Session)
		}
		e.metricInc(MetricTransientStoreError)
		e.logger.Warn(ctx, "login backend failure", "error", res.Err)
		return TokenPair{}, ErrTransientStore
	}
}

// Logout ends the session behind refreshToken. Logging out a session that is
// already inactive, expired or unknown succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flowsvc.Logout(ctx, refreshToken)
	switch res.Failure {
	case flows.LogoutFailureInvalid:
		return ErrInvalidRefreshToken
	case flows.LogoutFailureTransient:
		e.metricInc(MetricTransientStoreError)
		e.logger.Warn(ctx, "logout backend failure",
			"user_id", res.Record.UserID,
			"family_id", res.Record.FamilyID,
			"error", res.Err,
		)
		return ErrTransientStore
	}

	if res.Deactivated {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogoutSession, true, res.Record.UserID, res.Record.FamilyID, res.Record.ID, nil, nil)
	}
	return nil
}

// LogoutAll revokes every refresh record of userID. Access tokens already
// issued stay valid until they expire; use [Engine.SignOutEverywhere] to
// invalidate them too.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flowsvc.LogoutAll(ctx, userID)
	if err := e.logoutAllError(ctx, userID, res); err != nil {
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitUserRevoked(ctx, userID, res.Revoked, session.ReasonLogoutAll)
	return nil
}

// SignOutEverywhere bumps the user's session version, which invalidates every
// outstanding access token at once, and then revokes all refresh records.
func (e *Engine) SignOutEverywhere(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flowsvc.SignOutEverywhere(ctx, userID, session.ReasonCompromised)
	if err := e.logoutAllError(ctx, userID, res); err != nil {
		return err
	}

	e.metricInc(MetricSessionVersionBumped)
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventSessionVersionBumped, true, userID, "", "", nil, nil)
	e.emitUserRevoked(ctx, userID, res.Revoked, session.ReasonCompromised)
	return nil
}

func (e *Engine) logoutAllError(ctx context.Context, userID string, res flows.LogoutAllResult) error {
	switch res.Failure {
	case flows.LogoutFailureNone:
		return nil
	case flows.LogoutFailureInvalid:
		return ErrUserNotFound
	}
	if errors.Is(res.Err, ErrUserNotFound) {
		return ErrUserNotFound
	}
	e.metricInc(MetricTransientStoreError)
	e.logger.Warn(ctx, "user session revocation failed", "user_id", userID, "revoked", res.Revoked, "error", res.Err)
	return ErrTransientStore
}

func (e *Engine) emitUserRevoked(ctx context.Context, userID string, revoked int, reason string) {
	e.emitAudit(ctx, auditEventUserSessionsRevoked, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
			"reason":  reason,
		}
	})
}
