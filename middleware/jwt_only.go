package middleware

import "net/http"

// RequireAccess accepts only a valid, current access token. Refresh tokens
// are ignored, so the wrapped handler never triggers a rotation or a store
// lookup. Use it on endpoints that must not mutate session state.
func RequireAccess(engine SessionResolver, opts Options) func(http.Handler) http.Handler {
	opts.ignoreRefresh = true
	return Resolver(engine, opts)
}
