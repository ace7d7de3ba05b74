package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typAccess  = "at+jwt"
	typRefresh = "rt+jwt"

	minSecretBytes = 32
	maxLeeway      = 2 * time.Minute
)

var (
	// ErrExpired is returned when a correctly signed token is past its exp claim.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for bad signatures, malformed structure and claim violations.
	ErrInvalid = errors.New("token invalid")
)

// Config configures a Codec.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	// Leeway is the clock-skew allowance applied to exp, nbf and iat.
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// AccessClaims is the fixed claim set of an access token. FamilyID names the
// refresh family the token was minted for.
type AccessClaims struct {
	Email          string `json:"email"`
	SessionVersion uint64 `json:"sv"`
	FamilyID       string `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the fixed claim set of a refresh token. ID (jti) carries
// the refresh secret.
type RefreshClaims struct {
	FamilyID string `json:"fid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens with distinct HMAC secrets.
//
// Codec instances are immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec.
//
// NewCodec may return an error when secrets are short, equal, or when TTL
// and leeway settings are out of range.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, errors.New("access secret must be at least 32 bytes")
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, errors.New("refresh secret must be at least 32 bytes")
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	return &Codec{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// IssueAccess builds and signs an access token valid from now for AccessTTL.
func (c *Codec) IssueAccess(userID, email, familyID string, sessionVersion uint64, now time.Time) (string, *AccessClaims, error) {
	claims := AccessClaims{
		Email:          email,
		SessionVersion: sessionVersion,
		FamilyID:       familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}
	token, err := c.SignAccessToken(claims)
	if err != nil {
		return "", nil, err
	}
	return token, &claims, nil
}

// IssueRefresh builds and signs a refresh token expiring at expiresAt.
func (c *Codec) IssueRefresh(userID, familyID, secret string, expiresAt, now time.Time) (string, error) {
	return c.SignRefreshToken(RefreshClaims{
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        secret,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
}

// SignAccessToken signs claims with the access secret. Issuer and audience
// are filled from the config.
func (c *Codec) SignAccessToken(claims AccessClaims) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("access claims require subject")
	}
	if claims.ExpiresAt == nil {
		return "", errors.New("access claims require exp")
	}
	c.stampRegistered(&claims.RegisteredClaims)
	return c.sign(&claims, typAccess, c.config.AccessSecret)
}

// SignRefreshToken signs claims with the refresh secret.
func (c *Codec) SignRefreshToken(claims RefreshClaims) (string, error) {
	if claims.Subject == "" || claims.FamilyID == "" || claims.ID == "" {
		return "", errors.New("refresh claims require subject, family and jti")
	}
	if claims.ExpiresAt == nil {
		return "", errors.New("refresh claims require exp")
	}
	c.stampRegistered(&claims.RegisteredClaims)
	return c.sign(&claims, typRefresh, c.config.RefreshSecret)
}

// VerifyAccessToken parses an access token. It returns ErrExpired or ErrInvalid.
//
// VerifyAccessToken returns ErrExpired for an authentic but expired token and
// ErrInvalid for every other failure.
func (c *Codec) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims, typAccess, c.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims, nil
}

// VerifyRefreshToken parses a refresh token. It returns ErrExpired or ErrInvalid.
//
// VerifyRefreshToken applies the same classification as VerifyAccessToken and
// additionally requires the family and jti claims.
func (c *Codec) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenStr, claims, typRefresh, c.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.FamilyID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing refresh claims", ErrInvalid)
	}
	return claims, nil
}

func (c *Codec) stampRegistered(rc *jwt.RegisteredClaims) {
	if c.config.Issuer != "" {
		rc.Issuer = c.config.Issuer
	}
	if c.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{c.config.Audience}
	}
}

func (c *Codec) sign(claims jwt.Claims, typ string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = typ
	return token.SignedString(secret)
}

type timedClaims interface {
	jwt.Claims
	issuedAt() *jwt.NumericDate
}

func (c *AccessClaims) issuedAt() *jwt.NumericDate  { return c.IssuedAt }
func (c *RefreshClaims) issuedAt() *jwt.NumericDate { return c.IssuedAt }

func (c *Codec) parse(tokenStr string, claims timedClaims, typ string, secret []byte) error {
	if tokenStr == "" {
		return fmt.Errorf("%w: empty token", ErrInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.config.Now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if got, _ := t.Header["typ"].(string); got != typ {
			return nil, errors.New("unexpected token type")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return ErrInvalid
	}

	if iat := claims.issuedAt(); iat == nil {
		return fmt.Errorf("%w: missing iat", ErrInvalid)
	} else if iat.Time.After(c.config.Now().Add(c.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}

	return nil
}
