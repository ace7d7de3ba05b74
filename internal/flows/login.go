package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureTransient
	LoginFailureIssue
)

// LoginUser is the flow-local user model used by login.
type LoginUser struct {
	UserID         string
	Email          string
	PasswordHash   string
	SessionVersion uint64
}

// LoginResult carries the begin-session outcome of a successful login.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Session BeginResult
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	IncrementLogin(ctx context.Context, identifier, ip string) error
	ResetLogin(ctx context.Context, identifier, ip string) error
}

// LoginDeps captures login dependencies. DummyHash is verified against when
// the identifier is unknown so both branches cost one argon2 evaluation.
type LoginDeps struct {
	ClientIP       string
	RateLimiter    LoginRateLimiter
	LookupUser     func(ctx context.Context, identifier string) (LoginUser, error)
	VerifyPassword func(plaintext, encoded string) bool
	DummyHash      string
	Begin          func(ctx context.Context, identity Identity) BeginResult

	ErrUserNotFound error
	ErrRateLimited  error
}

// RunLogin checks credentials and starts a new session family.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, identifier, deps.ClientIP); err != nil {
			if deps.ErrRateLimited != nil && errors.Is(err, deps.ErrRateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			return LoginResult{Failure: LoginFailureTransient, Err: err}
		}
	}

	user, err := deps.LookupUser(ctx, identifier)
	if err != nil {
		if deps.ErrUserNotFound == nil || !errors.Is(err, deps.ErrUserNotFound) {
			return LoginResult{Failure: LoginFailureTransient, Err: err}
		}
		deps.VerifyPassword(password, deps.DummyHash)
		return failedLogin(ctx, identifier, "", err, deps)
	}

	if !deps.VerifyPassword(password, user.PasswordHash) {
		return failedLogin(ctx, identifier, user.UserID, errors.New("password mismatch"), deps)
	}

	if deps.RateLimiter != nil {
		// A stale counter only delays the next window reset.
		_ = deps.RateLimiter.ResetLogin(ctx, identifier, deps.ClientIP)
	}

	begun := deps.Begin(ctx, Identity{
		UserID:         user.UserID,
		Email:          user.Email,
		SessionVersion: user.SessionVersion,
	})
	if begun.Failure != BeginFailureNone {
		kind := LoginFailureTransient
		if begun.Failure == BeginFailureIssue {
			kind = LoginFailureIssue
		}
		return LoginResult{Failure: kind, Err: begun.Err, UserID: user.UserID, Session: begun}
	}
	return LoginResult{UserID: user.UserID, Session: begun}
}

func failedLogin(ctx context.Context, identifier, userID string, cause error, deps LoginDeps) LoginResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.IncrementLogin(ctx, identifier, deps.ClientIP); err != nil {
			if deps.ErrRateLimited != nil && errors.Is(err, deps.ErrRateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, UserID: userID}
			}
		}
	}
	return LoginResult{Failure: LoginFailureInvalidCredentials, Err: cause, UserID: userID}
}
