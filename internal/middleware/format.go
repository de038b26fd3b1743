package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// Format is the client flavour a response targets. Mobile clients get the
// compact page variants.
type Format string

const (
	FormatHTML   Format = "html"
	FormatMobile Format = "mobile"
)

var mobileUA = regexp.MustCompile(`(?i)iphone|ipod|android.*mobile|windows phone|blackberry|opera mini|iemobile`)

// DetectFormat picks the format from an explicit ?format= value, falling back
// to the User-Agent.
func DetectFormat(r *http.Request) Format {
	switch Format(strings.ToLower(r.URL.Query().Get("format"))) {
	case FormatMobile:
		return FormatMobile
	case FormatHTML:
		return FormatHTML
	}
	if mobileUA.MatchString(r.UserAgent()) {
		return FormatMobile
	}
	return FormatHTML
}

func FormatMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithFormat(r.Context(), DetectFormat(r))))
	})
}

// IsXHR reports whether the request came from a script asking for a partial.
func IsXHR(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}
