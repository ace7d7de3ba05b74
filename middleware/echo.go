package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/labstack/echo/v4"
)

// EchoContextKey is the echo.Context key holding the goSession.AuthContext.
const EchoContextKey = "auth"

// EchoResolver is [Resolver] for Echo. The identity is stored both under
// [EchoContextKey] and in the request context. Failures return an
// echo.HTTPError with [FailureStatus] unless opts.OnFailure is set.
func EchoResolver(engine SessionResolver, opts Options) echo.MiddlewareFunc {
	custom := opts.OnFailure
	opts = opts.withDefaults()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if engine == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
			}

			r := c.Request()
			in := opts.extract(r)
			if opts.ignoreRefresh {
				in.refresh = ""
			}

			res := engine.Resolve(r.Context(), in.access, in.refresh)
			if !res.OK() {
				if custom != nil {
					custom(c.Response(), r, res)
					return nil
				}
				status := FailureStatus(res)
				if status == http.StatusServiceUnavailable {
					c.Response().Header().Set("Retry-After", "1")
					return echo.NewHTTPError(status, "service unavailable")
				}
				return echo.NewHTTPError(status, "unauthorized")
			}

			if res.Rotated {
				opts.writePair(c.Response(), res.Tokens, in.fromHeader)
			}

			c.Set(EchoContextKey, res.Context)
			c.SetRequest(r.WithContext(WithAuthContext(r.Context(), res.Context)))
			return next(c)
		}
	}
}

// EchoAuthContext returns the identity stored by [EchoResolver].
func EchoAuthContext(c echo.Context) (goSession.AuthContext, bool) {
	auth, ok := c.Get(EchoContextKey).(goSession.AuthContext)
	return auth, ok
}
