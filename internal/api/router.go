package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hotspotportal/internal/config"
	"hotspotportal/internal/logging"
	"hotspotportal/internal/middleware"
	"hotspotportal/internal/rate"
	"hotspotportal/internal/service"
	"hotspotportal/internal/util"
	"hotspotportal/internal/version"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	cfg     config.Config
	svc     *service.Service
	log     logging.Logger
	limiter *rate.Limiter
}

func NewRouter(cfg config.Config, svc *service.Service, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Discard()
	}
	h := &Handlers{
		cfg:     cfg,
		svc:     svc,
		log:     log,
		limiter: rate.NewLimiter(),
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]any{"status": "ok", "version": version.Current()})
	})
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.FormatMiddleware)
		r.Use(middleware.LoadOperator(h.svc, h.cfg.OperatorCookieName))
		r.Use(middleware.LoadAccount(h.svc, h.cfg.SessionCookieName))

		r.Route("/account", func(r chi.Router) {
			r.Get("/new", h.NewAccount)
			r.With(middleware.RateLimit(h.limiter, "register", 10, time.Minute, h.cfg.TrustProxy)).Post("/", h.CreateAccount)
			r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, h.cfg.TrustProxy)).Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/verification", h.Verification)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAccount)
				r.Get("/", h.Show)
				r.Get("/edit", h.Edit)
				r.Post("/update", h.Update)
				r.Put("/", h.Update)
				r.Get("/accountings", h.Accountings)
			})
		})

		r.Route("/operator", func(r chi.Router) {
			r.With(middleware.RateLimit(h.limiter, "operator_login", 10, time.Minute, h.cfg.TrustProxy)).Post("/login", h.OperatorLogin)
			r.Post("/logout", h.OperatorLogout)

			r.Route("/stats", func(r chi.Router) {
				r.Use(middleware.RequireOperator)
				r.Get("/day", h.StatsDay)
				r.Get("/logins", h.StatsLogins)
				r.Get("/traffic", h.StatsTraffic)
				r.Get("/last-logins", h.StatsLastLogins)
				r.Get("/online-users", h.StatsOnlineUsers)
			})
		})
	})

	r.Route("/ipn", func(r chi.Router) {
		r.Post("/verify_credit_card", h.VerifyCreditCard)
		r.Post("/secure_verify_credit_card", h.SecureVerifyCreditCard)
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{"checked_at": time.Now().UTC().Format(time.RFC3339)}
	comps := map[string]any{}
	ok := true
	for name, err := range h.svc.Ready(r.Context()) {
		if err != nil {
			ok = false
			comps[name] = map[string]any{"ok": false, "error": err.Error()}
			continue
		}
		comps[name] = map[string]any{"ok": true}
	}
	ready["components"] = comps
	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, 200, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, 503, ready)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return false
	}
	return true
}

type validationResponse struct {
	util.APIError
	Fields map[string]string    `json:"fields"`
	Form   *service.AccountForm `json:"form,omitempty"`
}

// writeServiceError maps service errors to the JSON error envelope.
// Validation failures carry their field messages.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		util.WriteJSON(w, http.StatusUnprocessableEntity, validationResponse{
			APIError: util.APIError{Code: "validation_failed", Message: verr.Error(), RequestID: rid},
			Fields:   verr.Fields,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", rid)
	case errors.Is(err, service.ErrAccountNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "account not found", rid)
	case errors.Is(err, service.ErrInvalidRange):
		util.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), rid)
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "request_id", rid, "err", err)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", rid)
	}
}

func (h *Handlers) setCookie(w http.ResponseWriter, r *http.Request, name, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.SessionAbsoluteDuration().Seconds()),
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
