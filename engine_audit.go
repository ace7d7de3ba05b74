package goSession

import (
	"context"
	"errors"
	"strconv"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
)

const (
	auditEventLoginSuccess         = internalaudit.TypeLoginSuccess
	auditEventLoginFailure         = internalaudit.TypeLoginFailure
	auditEventLoginRateLimited     = internalaudit.TypeLoginRateLimited
	auditEventSessionStarted       = internalaudit.TypeSessionStarted
	auditEventRefreshSuccess       = internalaudit.TypeRefreshSuccess
	auditEventRefreshInvalid       = internalaudit.TypeRefreshInvalid
	auditEventRefreshRateLimited   = internalaudit.TypeRefreshRateLimited
	auditEventRefreshReuseDetected = internalaudit.TypeRefreshReuseDetected
	auditEventFamilyRevoked        = internalaudit.TypeFamilyRevoked
	auditEventLogoutSession        = internalaudit.TypeLogoutSession
	auditEventUserSessionsRevoked  = internalaudit.TypeUserSessionsRevoked
	auditEventSessionVersionBumped = internalaudit.TypeSessionVersionBumped
)

// AuditErrorCode is the stable, secret-free error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrUnknownToken       AuditErrorCode = "unknown_token"
	auditErrStaleVersion       AuditErrorCode = "stale_session_version"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrSessionCreation    AuditErrorCode = "session_creation_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	recordID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		RecordID:  recordID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitFamilyRevoked(ctx context.Context, userID, familyID, recordID string, revoked int, cause string) {
	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, userID, familyID, recordID, nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
			"cause":   cause,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidAccessToken),
		errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrExpiredAccessToken),
		errors.Is(err, ErrExpiredRefreshToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrUnknownRefreshToken):
		return auditErrUnknownToken
	case errors.Is(err, ErrStaleSessionVersion):
		return auditErrStaleVersion
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrSessionCreation):
		return auditErrSessionCreation
	case errors.Is(err, ErrTransientStore),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
