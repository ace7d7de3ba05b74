package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

// SessionResolver is the engine surface the middleware needs.
type SessionResolver interface {
	Resolve(ctx context.Context, accessToken, refreshToken string) goSession.Resolution
}

type authContextKey struct{}

// WithAuthContext returns a copy of ctx carrying auth.
func WithAuthContext(ctx context.Context, auth goSession.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthContextFrom returns the identity stored by [Resolver].
func AuthContextFrom(ctx context.Context) (goSession.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(goSession.AuthContext)
	return auth, ok
}

// Options configures token transport. The zero value reads the
// "accessToken" and "refreshToken" cookies, falls back to the Authorization
// and X-Refresh-Token headers, and writes Secure HttpOnly cookies on rotation.
type Options struct {
	AccessCookie  string
	RefreshCookie string
	RefreshHeader string

	CookiePath   string
	CookieDomain string
	// Insecure drops the Secure cookie attribute, for local HTTP only.
	Insecure bool
	SameSite http.SameSite

	// OnFailure writes the rejection response. The default writes a plain
	// 401 "unauthorized", or 503 with Retry-After when the failure was a
	// backend outage rather than a bad token.
	OnFailure func(w http.ResponseWriter, r *http.Request, res goSession.Resolution)

	ignoreRefresh bool
}

func (o Options) withDefaults() Options {
	if o.AccessCookie == "" {
		o.AccessCookie = "accessToken"
	}
	if o.RefreshCookie == "" {
		o.RefreshCookie = "refreshToken"
	}
	if o.RefreshHeader == "" {
		o.RefreshHeader = "X-Refresh-Token"
	}
	if o.CookiePath == "" {
		o.CookiePath = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.OnFailure == nil {
		o.OnFailure = reject
	}
	return o
}

// Resolver authenticates every request through engine. When the engine
// rotates, the new pair is written to the response before next runs.
func Resolver(engine SessionResolver, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				opts.OnFailure(w, r, goSession.Resolution{Reason: goSession.ReasonTransientError, Err: goSession.ErrEngineNotReady})
				return
			}

			in := opts.extract(r)
			if opts.ignoreRefresh {
				in.refresh = ""
			}

			res := engine.Resolve(r.Context(), in.access, in.refresh)
			if !res.OK() {
				opts.OnFailure(w, r, res)
				return
			}

			if res.Rotated {
				opts.writePair(w, res.Tokens, in.fromHeader)
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), res.Context)))
		})
	}
}

type presented struct {
	access     string
	refresh    string
	fromHeader bool
}

func (o Options) extract(r *http.Request) presented {
	var p presented
	if c, err := r.Cookie(o.AccessCookie); err == nil {
		p.access = c.Value
	}
	if c, err := r.Cookie(o.RefreshCookie); err == nil {
		p.refresh = c.Value
	}
	if p.access == "" && p.refresh == "" {
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			p.access = token
		}
		p.refresh = strings.TrimSpace(r.Header.Get(o.RefreshHeader))
		p.fromHeader = p.access != "" || p.refresh != ""
	}
	return p
}

// writePair sets both cookies. Header clients also get the pair back in
// response headers since they never see cookies.
func (o Options) writePair(w http.ResponseWriter, pair goSession.TokenPair, headers bool) {
	http.SetCookie(w, o.cookie(o.AccessCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, o.cookie(o.RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt))
	if headers {
		w.Header().Set("X-Access-Token", pair.AccessToken)
		w.Header().Set(o.RefreshHeader, pair.RefreshToken)
	}
}

func (o Options) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.CookiePath,
		Domain:   o.CookieDomain,
		Expires:  expires,
		Secure:   !o.Insecure,
		HttpOnly: true,
		SameSite: o.SameSite,
	}
}

// FailureStatus maps a failed resolution to an HTTP status: 503 for
// transient backend errors, 401 for everything else.
func FailureStatus(res goSession.Resolution) int {
	if res.Reason == goSession.ReasonTransientError {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

func reject(w http.ResponseWriter, _ *http.Request, res goSession.Resolution) {
	status := FailureStatus(res)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "service unavailable", status)
		return
	}
	http.Error(w, "unauthorized", status)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
