package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/randalmurphal/careflow/auth"
)

// =============================================================================
// Request Logging
// =============================================================================

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// =============================================================================
// CORS
// =============================================================================

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// =============================================================================
// Authentication
// =============================================================================

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Subject string
	Role    auth.Role
}

type principalKey struct{}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func (s *Server) authEnabled() bool {
	if s.cfg.Keyring != nil && s.cfg.Keyring.Len() > 0 {
		return true
	}
	return s.cfg.JWT != nil && len(s.cfg.JWT.Secret) > 0
}

// requireRole authenticates the bearer credential and checks that its
// role covers the required one. With no keyring and no JWT secret the
// server is open and every request passes.
func (s *Server) requireRole(required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
				return
			}

			p, err := s.authenticate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid credentials", "unauthorized")
				return
			}
			if !p.Role.Allows(required) {
				writeError(w, http.StatusForbidden, "requires "+string(required)+" role", "forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate resolves a bearer token against the keyring first, then
// as a reviewer JWT.
func (s *Server) authenticate(token string) (Principal, error) {
	if s.cfg.Keyring != nil {
		if role, ok := s.cfg.Keyring.Lookup(token); ok {
			return Principal{
				Subject: "key:" + auth.ExtractAPIKeyPrefix(token, auth.APIKeyConfig{}),
				Role:    role,
			}, nil
		}
	}
	if s.cfg.JWT != nil && len(s.cfg.JWT.Secret) > 0 {
		claims, err := auth.ValidateReviewerToken(*s.cfg.JWT, token)
		if err != nil {
			return Principal{}, err
		}
		return Principal{Subject: claims.Subject, Role: claims.Role}, nil
	}
	return Principal{}, auth.ErrInvalidToken
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// =============================================================================
// Rate Limiting
// =============================================================================

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "mutation rate limit exceeded", "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}
