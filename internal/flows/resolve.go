package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/jwt"
)

// ResolveFailureKind classifies resolve failures for root-level mapping.
type ResolveFailureKind int

const (
	ResolveFailureNone ResolveFailureKind = iota
	ResolveFailureMissing
	ResolveFailureAccessInvalid
	ResolveFailureAccessExpired
	ResolveFailureStaleVersion
	ResolveFailureTransient
	// ResolveFailureRefresh means rotation ran and failed; see Rotate.
	ResolveFailureRefresh
)

// ResolveResult is the outcome of one request-scoped resolve. Access holds
// the claims of whichever access token authenticated the request.
type ResolveResult struct {
	Failure ResolveFailureKind
	Err     error
	Access  *jwt.AccessClaims
	Rotated bool
	Rotate  *RotateResult
}

// ResolveDeps captures resolver dependencies. CurrentSessionVersion must not
// touch the session store.
type ResolveDeps struct {
	VerifyAccess          func(string) (*jwt.AccessClaims, error)
	CurrentSessionVersion func(ctx context.Context, userID string) (uint64, error)
	Rotate                func(ctx context.Context, refreshToken string) RotateResult

	ErrUserNotFound error
}

// RunResolve authenticates a request from its raw token material.
//
// A valid access token whose session version matches the user's current
// value is accepted with no store access. Any other access outcome falls back
// to rotation when a refresh token is present. When both fail, the refresh
// outcome is reported.
func RunResolve(ctx context.Context, accessToken, refreshToken string, deps ResolveDeps) ResolveResult {
	if accessToken == "" && refreshToken == "" {
		return ResolveResult{Failure: ResolveFailureMissing}
	}

	accessFailure := ResolveFailureMissing
	var accessErr error

	if accessToken != "" {
		claims, err := deps.VerifyAccess(accessToken)
		switch {
		case err == nil:
			current, verr := deps.CurrentSessionVersion(ctx, claims.Subject)
			switch {
			case verr == nil && current == claims.SessionVersion:
				return ResolveResult{Access: claims}
			case verr == nil:
				accessFailure = ResolveFailureStaleVersion
				accessErr = errors.New("session version mismatch")
			case deps.ErrUserNotFound != nil && errors.Is(verr, deps.ErrUserNotFound):
				accessFailure = ResolveFailureAccessInvalid
				accessErr = verr
			default:
				return ResolveResult{Failure: ResolveFailureTransient, Err: verr}
			}
		case errors.Is(err, jwt.ErrExpired):
			accessFailure = ResolveFailureAccessExpired
			accessErr = err
		default:
			accessFailure = ResolveFailureAccessInvalid
			accessErr = err
		}
	}

	if refreshToken == "" {
		return ResolveResult{Failure: accessFailure, Err: accessErr}
	}

	rotated := deps.Rotate(ctx, refreshToken)
	if rotated.Failure != RotateFailureNone {
		return ResolveResult{Failure: ResolveFailureRefresh, Err: rotated.Err, Rotate: &rotated}
	}
	return ResolveResult{Access: rotated.Access, Rotated: true, Rotate: &rotated}
}
