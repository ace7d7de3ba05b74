package flows

import (
	"context"
	"time"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring. When the
// resolve deps carry no Rotate func, the service's own Rotate is used.
func New(deps Deps) Service {
	s := Service{deps: deps}
	if s.deps.Resolve.Rotate == nil {
		rotate := deps.Rotate
		s.deps.Resolve.Rotate = func(ctx context.Context, refreshToken string) RotateResult {
			return RunRotate(ctx, refreshToken, rotate)
		}
	}
	if s.deps.Login.Begin == nil {
		begin := deps.Begin
		s.deps.Login.Begin = func(ctx context.Context, identity Identity) BeginResult {
			return RunBeginSession(ctx, identity, begin)
		}
	}
	return s
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Resolve.VerifyAccess != nil && s.deps.Rotate.Store != nil
}

func (s Service) Rotate(ctx context.Context, refreshToken string) RotateResult {
	return RunRotate(ctx, refreshToken, s.deps.Rotate)
}

func (s Service) Resolve(ctx context.Context, accessToken, refreshToken string) ResolveResult {
	return RunResolve(ctx, accessToken, refreshToken, s.deps.Resolve)
}

func (s Service) BeginSession(ctx context.Context, identity Identity) BeginResult {
	return RunBeginSession(ctx, identity, s.deps.Begin)
}

// Login runs the login flow for a request originating from clientIP.
func (s Service) Login(ctx context.Context, identifier, password, clientIP string) LoginResult {
	deps := s.deps.Login
	deps.ClientIP = clientIP
	return RunLogin(ctx, identifier, password, deps)
}

func (s Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID string) LogoutAllResult {
	deps := s.deps.LogoutAll
	deps.BumpSessionVersion = nil
	return RunLogoutAll(ctx, userID, deps)
}

// SignOutEverywhere bumps the session version and then revokes every record.
func (s Service) SignOutEverywhere(ctx context.Context, userID, reason string) LogoutAllResult {
	deps := s.deps.LogoutAll
	deps.Reason = reason
	return RunLogoutAll(ctx, userID, deps)
}

func (s Service) ListSessions(ctx context.Context, userID string, now time.Time) ([]SessionSummary, error) {
	return RunListSessions(ctx, userID, now, s.deps.Sessions)
}
