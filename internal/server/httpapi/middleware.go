package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/server/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFrom returns the verified token claims stored by the auth
// middleware.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeUnauthorized, Message: "missing bearer token"})
			return
		}

		claims, err := auth.ParseToken(token, h.secretKey)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "token expired"
			}
			writeError(w, http.StatusUnauthorized, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeUnauthorized, Message: msg})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok || claims.Role != role {
				writeError(w, http.StatusForbidden, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeForbidden, Message: "requires role " + role})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit keys on the authenticated caller, falling back to the client IP.
func (h *Handler) rateLimit(window time.Duration) func(http.Handler) http.Handler {
	if h.ratePerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	keyFunc := func(r *http.Request) (string, error) {
		if claims, ok := ClaimsFrom(r.Context()); ok {
			return "sub:" + claims.Subject, nil
		}
		return httprate.KeyByIP(r)
	}

	return httprate.Limit(h.ratePerMin, window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.metrics.ObserveRateLimited()
			writeError(w, http.StatusTooManyRequests, &api.Error{Kind: api.ErrorTransient, Code: api.CodeRateLimited, Message: "too many requests"})
		}),
	)
}

// instrument records request durations labelled by route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
		h.logger.Debug(r.Context(), "request served",
			"method", r.Method, "route", route, "status", status, "elapsed", time.Since(start))
	})
}
