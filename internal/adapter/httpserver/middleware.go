package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"

	"go.uber.org/zap"
)

type contextKey string

const (
	principalKey   contextKey = "principal"
	accessTokenKey contextKey = "accessToken"
)

// principalFrom returns the authenticated principal, or nil for
// anonymous requests.
func principalFrom(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey).(*identity.Principal)
	return p
}

// accessTokenFrom returns the raw bearer token for forwarding to the
// identity provider.
func accessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey).(string)
	return token
}

// withPrincipal resolves the bearer token into a principal when one is
// present. Requests without a token pass through anonymous; requests
// with a bad token are rejected rather than silently downgraded.
func (h *Handler) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			h.writeError(w, r, "auth", domain.ErrUnauthenticated)
			return
		}

		principal, err := identity.ParseAccessToken(token, h.jwtSecret)
		if err != nil {
			h.logger.Debug("Rejected access token", zap.Error(err))
			h.writeError(w, r, "auth", domain.ErrUnauthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, accessTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth rejects anonymous requests. Must sit behind withPrincipal.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principalFrom(r.Context()) == nil {
			h.writeError(w, r, "auth", domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// requestLogging logs every request with its outcome and records
// latency per route pattern.
func (h *Handler) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		h.metrics.APILatency.WithLabelValues(r.Method + " " + r.URL.Path).Observe(elapsed.Seconds())
		h.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}
