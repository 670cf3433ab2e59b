package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sentra-auth/sentra/internal/shared"
)

// FailureRecorder counts rejected bearer tokens. Satisfied by
// observability.Metrics.
type FailureRecorder interface {
	RecordAuthFailure()
}

// Authenticator resolves the bearer credential on every request. It only
// attaches the identity; rejecting unauthenticated requests is left to
// whichever downstream stage requires one.
type Authenticator struct {
	Service *Service
	Logger  *slog.Logger
	Metrics FailureRecorder
}

// Middleware extracts the bearer token and, when it verifies, stores the
// resolved identity in the request context.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ident, err := a.Service.VerifyAccess(r.Context(), token)
		if err != nil {
			if a.Metrics != nil {
				a.Metrics.RecordAuthFailure()
			}
			if a.Logger != nil {
				a.Logger.Debug("bearer token rejected", slog.String("path", r.URL.Path))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), ident)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
