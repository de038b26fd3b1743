package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hotspotportal/internal/logging"
	"hotspotportal/internal/models"
	"hotspotportal/internal/rate"
	"hotspotportal/internal/service"
)

func TestClientIPTrustProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:12345"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")

	if got := ClientIP(r, false); got != "10.0.0.5" {
		t.Fatalf("unexpected direct IP: %s", got)
	}
	if got := ClientIP(r, true); got != "1.2.3.4" {
		t.Fatalf("unexpected proxied IP: %s", got)
	}
}

type fakeSessions struct {
	account  models.Account
	operator models.Operator
}

func (f fakeSessions) ValidateSession(ctx context.Context, raw string) (models.Account, models.Session, error) {
	switch raw {
	case "acc-token":
	case "db-down":
		return models.Account{}, models.Session{}, errors.New("db down")
	case "orphan":
		return models.Account{}, models.Session{}, service.ErrAccountNotFound
	default:
		return models.Account{}, models.Session{}, service.ErrInvalidCredentials
	}
	return f.account, models.Session{ID: "s1", PrincipalKind: models.PrincipalAccount}, nil
}

func (f fakeSessions) ValidateOperatorSession(ctx context.Context, raw string) (models.Operator, models.Session, error) {
	switch raw {
	case "op-token":
	case "db-down":
		return models.Operator{}, models.Session{}, errors.New("db down")
	default:
		return models.Operator{}, models.Session{}, service.ErrInvalidCredentials
	}
	return f.operator, models.Session{ID: "s2", PrincipalKind: models.PrincipalOperator}, nil
}

func TestLoadAndRequireAccount(t *testing.T) {
	f := fakeSessions{account: models.Account{ID: "a1", Username: "mario"}}
	h := LoadAccount(f, "portal_session")(RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, _ := Account(r.Context())
		if _, ok := Session(r.Context()); !ok {
			t.Fatalf("session missing from context")
		}
		_, _ = w.Write([]byte(a.Username))
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request: expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "stale"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale cookie: expected 401, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "acc-token"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "mario" {
		t.Fatalf("expected 200 mario, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestLoadSessionLookupFailureIs500(t *testing.T) {
	f := fakeSessions{}
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	for name, h := range map[string]http.Handler{
		"account":  LoadAccount(f, "portal_session")(next),
		"operator": LoadOperator(f, "portal_session")(next),
	} {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "portal_session", Value: "db-down"})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", name, rr.Code)
		}
		if reached {
			t.Fatalf("%s: handler ran after a failed lookup", name)
		}
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "orphan"})
	rr := httptest.NewRecorder()
	LoadAccount(f, "portal_session")(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !reached {
		t.Fatalf("removed account: expected anonymous pass-through, got %d", rr.Code)
	}
}

func TestLoadOperatorIsOptional(t *testing.T) {
	f := fakeSessions{operator: models.Operator{ID: "o1", Login: "admin"}}
	var present bool
	h := LoadOperator(f, "portal_operator")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		present = OperatorPresent(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if present {
		t.Fatalf("operator should be absent without cookie")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_operator", Value: "op-token"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !present {
		t.Fatalf("operator should be present")
	}

	rr := httptest.NewRecorder()
	RequireOperator(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	l := rate.NewLimiter()
	h := RateLimit(l, "register", 2, time.Minute, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}
}

func TestRequestLoggerWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "info", "json")
	h := RequestIDMiddleware(RequestLogger(log, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/health/live", nil))
	rid := rr.Header().Get("X-Request-ID")
	if rid == "" {
		t.Fatalf("missing request id header")
	}
	line := buf.String()
	for _, want := range []string{`"status":418`, `"path":"/health/live"`, rid} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		url  string
		ua   string
		want Format
	}{
		{"/", "Mozilla/5.0 (X11; Linux x86_64)", FormatHTML},
		{"/", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", FormatMobile},
		{"/", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari", FormatMobile},
		{"/?format=mobile", "Mozilla/5.0 (X11; Linux x86_64)", FormatMobile},
		{"/?format=html", "Mozilla/5.0 (iPhone)", FormatHTML},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", tc.url, nil)
		r.Header.Set("User-Agent", tc.ua)
		if got := DetectFormat(r); got != tc.want {
			t.Fatalf("%s %q: expected %s, got %s", tc.url, tc.ua, tc.want, got)
		}
	}
}

func TestIsXHR(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if IsXHR(r) {
		t.Fatalf("plain request is not xhr")
	}
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	if !IsXHR(r) {
		t.Fatalf("expected xhr")
	}
}
