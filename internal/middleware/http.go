package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hotspotportal/internal/logging"
	"hotspotportal/internal/models"
	"hotspotportal/internal/rate"
	"hotspotportal/internal/service"
	"hotspotportal/internal/util"
)

type AccountSessions interface {
	ValidateSession(ctx context.Context, rawToken string) (models.Account, models.Session, error)
}

type OperatorSessions interface {
	ValidateOperatorSession(ctx context.Context, rawToken string) (models.Operator, models.Session, error)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// anonymous reports whether a session lookup error only means the cookie
// names no usable session.
func anonymous(err error) bool {
	return errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrAccountNotFound)
}

// LoadAccount attaches the account behind the session cookie, if any. A
// missing or stale cookie leaves the request anonymous; any other lookup
// failure answers 500.
func LoadAccount(v AccountSessions, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				a, sess, err := v.ValidateSession(r.Context(), c.Value)
				switch {
				case err == nil:
					ctx := WithAccount(r.Context(), a)
					r = r.WithContext(WithSession(ctx, sess))
				case !anonymous(err):
					util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", RequestID(r.Context()))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := Account(r.Context()); !ok {
			util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoadOperator attaches the operator acting through this browser, if any.
func LoadOperator(v OperatorSessions, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				op, _, err := v.ValidateOperatorSession(r.Context(), c.Value)
				switch {
				case err == nil:
					r = r.WithContext(WithOperator(r.Context(), op))
				case !anonymous(err):
					util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", RequestID(r.Context()))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !OperatorPresent(r.Context()) {
			util.WriteError(w, http.StatusUnauthorized, "unauthorized", "operator session required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RateLimit(l *rate.Limiter, route string, limit int, window time.Duration, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			if !l.Allow(key, limit, window) {
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(log logging.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			log.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestID(r.Context()),
				"remote_ip", ClientIP(r, trustProxy),
			)
		})
	}
}
