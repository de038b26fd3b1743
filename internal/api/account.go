package api

import (
	"errors"
	"net/http"

	"hotspotportal/internal/middleware"
	"hotspotportal/internal/models"
	"hotspotportal/internal/service"
	"hotspotportal/internal/util"
)

type registerRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	GivenName            string `json:"given_name"`
	Surname              string `json:"surname"`
	State                string `json:"state"`
	MobilePrefix         string `json:"mobile_prefix"`
	MobileSuffix         string `json:"mobile_suffix"`
	VerificationMethod   string `json:"verification_method"`
}

type updateRequest struct {
	Email                *string `json:"email"`
	GivenName            *string `json:"given_name"`
	Surname              *string `json:"surname"`
	State                *string `json:"state"`
	MobilePrefix         *string `json:"mobile_prefix"`
	MobileSuffix         *string `json:"mobile_suffix"`
	Password             *string `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
	DisableAccount       bool    `json:"disable_account"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// formatted adds the detected client format to a page payload.
type formatted[T any] struct {
	Page   T                 `json:"page"`
	Format middleware.Format `json:"format"`
}

func withFormat[T any](r *http.Request, page T) formatted[T] {
	return formatted[T]{Page: page, Format: middleware.RequestFormat(r.Context())}
}

func currentAccount(r *http.Request) models.Account {
	a, _ := middleware.Account(r.Context())
	return a
}

func (h *Handlers) NewAccount(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.NewAccountForm(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, withFormat(r, form))
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, a, err := h.svc.Register(r.Context(), service.RegisterInput{
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		GivenName:            req.GivenName,
		Surname:              req.Surname,
		State:                req.State,
		MobilePrefix:         req.MobilePrefix,
		MobileSuffix:         req.MobileSuffix,
		VerificationMethod:   models.VerificationMethod(req.VerificationMethod),
	}, middleware.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.writeRegisterInvalid(w, r, verr)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.setCookie(w, r, h.cfg.SessionCookieName, token)
	util.WriteJSON(w, http.StatusCreated, map[string]any{
		"account": service.NewAccountView(a),
		"view":    service.VerificationGate(a.VerificationMethod, a.Verified, middleware.OperatorPresent(r.Context())),
	})
}

// writeRegisterInvalid answers 422 with the field errors and the lists the
// client needs to redraw the form.
func (h *Handlers) writeRegisterInvalid(w http.ResponseWriter, r *http.Request, verr *service.ValidationError) {
	resp := validationResponse{
		APIError: util.APIError{Code: "validation_failed", Message: verr.Error(), RequestID: middleware.RequestID(r.Context())},
		Fields:   verr.Fields,
	}
	if form, err := h.svc.NewAccountForm(r.Context()); err == nil {
		resp.Form = &form
	}
	util.WriteJSON(w, http.StatusUnprocessableEntity, resp)
}

func (h *Handlers) Show(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Dashboard(r.Context(), currentAccount(r), middleware.OperatorPresent(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, withFormat(r, page))
}

func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Edit(r.Context(), currentAccount(r), middleware.OperatorPresent(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, withFormat(r, page))
}

func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Update(r.Context(), currentAccount(r), middleware.OperatorPresent(r.Context()), service.UpdateInput{
		Email:                req.Email,
		GivenName:            req.GivenName,
		Surname:              req.Surname,
		State:                req.State,
		MobilePrefix:         req.MobilePrefix,
		MobileSuffix:         req.MobileSuffix,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		DisableAccount:       req.DisableAccount,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if res.Disabled {
		h.clearCookie(w, r, h.cfg.SessionCookieName)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	util.WriteJSON(w, 200, withFormat(r, map[string]any{
		"view":    res.View,
		"account": service.NewAccountView(res.Account),
	}))
}

// Verification works without a live account: a registration removed by
// housekeeping resolves to the expired view.
func (h *Handlers) Verification(w http.ResponseWriter, r *http.Request) {
	var acc *models.Account
	if a, ok := middleware.Account(r.Context()); ok {
		acc = &a
	}
	util.WriteJSON(w, 200, withFormat(r, service.Verification(acc, middleware.IsXHR(r))))
}

func (h *Handlers) Accountings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.Accountings(r.Context(), currentAccount(r), q.Get("sort"), q.Get("page"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, page)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, a, err := h.svc.Login(r.Context(), req.Login, req.Password, middleware.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.setCookie(w, r, h.cfg.SessionCookieName, token)
	util.WriteJSON(w, 200, map[string]any{
		"account": service.NewAccountView(a),
		"view":    service.VerificationGate(a.VerificationMethod, a.Verified, middleware.OperatorPresent(r.Context())),
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.svc.Logout(r.Context(), cookieValue(r, h.cfg.SessionCookieName))
	h.clearCookie(w, r, h.cfg.SessionCookieName)
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}
