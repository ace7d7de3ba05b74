// Package jwt signs and verifies the two token kinds of a session: short-lived
// access tokens and rotating refresh tokens.
//
// Each kind has a fixed claim struct, its own HMAC secret and its own "typ"
// header, so a refresh token can never be accepted where an access token is
// expected. Verification separates [ErrExpired] from [ErrInvalid] so callers
// can rotate on expiry and reject on tampering.
package jwt
