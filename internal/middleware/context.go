package middleware

import (
	"context"
	"net/http"

	"hotspotportal/internal/models"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxAccount   ctxKey = "account"
	ctxOperator  ctxKey = "operator"
	ctxSession   ctxKey = "session"
	ctxFormat    ctxKey = "format"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithAccount(ctx context.Context, a models.Account) context.Context {
	return context.WithValue(ctx, ctxAccount, a)
}

func Account(ctx context.Context) (models.Account, bool) {
	a, ok := ctx.Value(ctxAccount).(models.Account)
	return a, ok
}

func WithOperator(ctx context.Context, op models.Operator) context.Context {
	return context.WithValue(ctx, ctxOperator, op)
}

func Operator(ctx context.Context) (models.Operator, bool) {
	op, ok := ctx.Value(ctxOperator).(models.Operator)
	return op, ok
}

// OperatorPresent reports whether an operator session rides along with the
// request.
func OperatorPresent(ctx context.Context) bool {
	_, ok := Operator(ctx)
	return ok
}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func Session(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(ctxSession).(models.Session)
	return s, ok
}

func WithFormat(ctx context.Context, f Format) context.Context {
	return context.WithValue(ctx, ctxFormat, f)
}

func RequestFormat(ctx context.Context) Format {
	f, ok := ctx.Value(ctxFormat).(Format)
	if !ok {
		return FormatHTML
	}
	return f
}

// SecurityHeaders sets the headers for a JSON-only API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
