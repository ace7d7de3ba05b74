package goSession

import (
	"context"
	"time"
)

// ListActiveSessions returns the user's unexpired, active refresh records,
// newest first. Token hashes are never exposed.
func (e *Engine) ListActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	list, err := e.flowsvc.ListSessions(ctx, userID, e.now())
	if err != nil {
		e.logger.Warn(ctx, "list sessions failed", "user_id", userID, "error", err)
		return nil, ErrTransientStore
	}

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, SessionInfo{
			RecordID:  s.RecordID,
			FamilyID:  s.FamilyID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return out, nil
}

// GetLoginAttempts returns the failed-login counter for identifier.
func (e *Engine) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.rateLimiter == nil {
		return 0, ErrEngineNotReady
	}
	if identifier == "" {
		return 0, nil
	}
	return e.rateLimiter.GetLoginAttempts(ctx, identifier)
}

// Health pings the session store and, when configured, Redis.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	var status HealthStatus

	start := time.Now()
	err := e.sessionStore.Ping(ctx)
	status.StoreLatency = time.Since(start)
	status.StoreAvailable = err == nil

	if e.redis != nil {
		start = time.Now()
		err = e.redis.Ping(ctx).Err()
		status.RedisLatency = time.Since(start)
		status.RedisAvailable = err == nil
	}

	return status
}
