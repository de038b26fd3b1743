package api

import (
	"net/http"

	"hotspotportal/internal/middleware"
	"hotspotportal/internal/service"
	"hotspotportal/internal/util"
)

func (h *Handlers) OperatorLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, op, err := h.svc.OperatorLogin(r.Context(), req.Login, req.Password, middleware.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.setCookie(w, r, h.cfg.OperatorCookieName, token)
	util.WriteJSON(w, 200, map[string]string{"operator_id": op.ID, "login": op.Login})
}

func (h *Handlers) OperatorLogout(w http.ResponseWriter, r *http.Request) {
	_ = h.svc.Logout(r.Context(), cookieValue(r, h.cfg.OperatorCookieName))
	h.clearCookie(w, r, h.cfg.OperatorCookieName)
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

func (h *Handlers) StatsDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.svc.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	stats, err := h.svc.DayStats(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, stats)
}

func (h *Handlers) StatsLogins(w http.ResponseWriter, r *http.Request) {
	from, err := h.svc.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	series, err := h.svc.LoginsFrom(r.Context(), from)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, series)
}

func (h *Handlers) StatsTraffic(w http.ResponseWriter, r *http.Request) {
	from, err := h.svc.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	series, err := h.svc.TrafficFrom(r.Context(), from)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, series)
}

func (h *Handlers) StatsLastLogins(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.LastLogins(r.Context(), service.ParseLimit(r.URL.Query().Get("n")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) StatsOnlineUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.OnlineUsers(r.Context(), service.ParseLimit(r.URL.Query().Get("n")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}
