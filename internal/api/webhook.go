package api

import (
	"net/http"

	"hotspotportal/internal/service"
	"hotspotportal/internal/util"
)

// Payment provider callbacks. The provider only needs to know the call was
// received, so both endpoints answer 200 with an empty body whatever happened.

func (h *Handlers) VerifyCreditCard(w http.ResponseWriter, r *http.Request) {
	h.handleIPN(w, r, false)
}

func (h *Handlers) SecureVerifyCreditCard(w http.ResponseWriter, r *http.Request) {
	h.handleIPN(w, r, true)
}

func (h *Handlers) handleIPN(w http.ResponseWriter, r *http.Request, secure bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.log.Warn(r.Context(), "ipn: unreadable form", "err", err)
		util.WriteEmpty(w, http.StatusOK)
		return
	}
	_, hasSecret := r.Form["secret"]
	_, hasInvoice := r.Form["invoice"]
	h.svc.HandleCreditCardIPN(r.Context(), service.CreditCardIPN{
		Secure:     secure,
		Secret:     r.Form.Get("secret"),
		HasSecret:  hasSecret,
		Invoice:    r.Form.Get("invoice"),
		HasInvoice: hasInvoice,
	})
	util.WriteEmpty(w, http.StatusOK)
}
