package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hackhub/internal/apperr"
	"hackhub/internal/authutil"
)

type ctxClaimsKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.metrics.Requests.Add(1)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			switch {
			case recorder.status >= 500:
				s.metrics.ServerErrors.Add(1)
			case recorder.status >= 400:
				s.metrics.ClientErrors.Add(1)
			}
			s.log.Info().
				Str("route", routePattern(r)).
				Str("method", r.Method).
				Int("status", recorder.status).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Bool("local_mode", !s.svc.RemoteAvailable(r.Context())).
				Str("client", clientOrigin(r)).
				Msg("request")
		})
	}
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := parseTokenFromHeader(r.Header.Get("Authorization"))
			claims, err := s.signer.ValidateToken(token)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "UNAUTHORIZED", "", "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// operatorOnly must run after authenticated.
func (s *Server) operatorOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := currentClaims(r); claims == nil || !claims.Operator {
				writeProblem(w, http.StatusForbidden, string(apperr.CodeForbidden), "", "operator token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseTokenFromHeader(h string) string {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func currentClaims(r *http.Request) *authutil.Claims {
	claims, _ := r.Context().Value(ctxClaimsKey{}).(*authutil.Claims)
	return claims
}

func currentUser(r *http.Request) string {
	if claims := currentClaims(r); claims != nil {
		return claims.Subject
	}
	return ""
}
