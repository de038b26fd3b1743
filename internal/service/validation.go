package service

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
)

// ValidationError carries per-field messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

var (
	usernameRx     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{2,39}$`)
	mobileSuffixRx = regexp.MustCompile(`^[0-9]{6,10}$`)
)

func validUsername(v string) bool { return usernameRx.MatchString(v) }

func validEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v
}

func validMobileSuffix(v string) bool { return mobileSuffixRx.MatchString(v) }

func (s *Service) checkPassword(v *ValidationError, pw, confirmation string) {
	switch {
	case strings.TrimSpace(pw) == "":
		v.add("password", "can't be blank")
	case len(pw) < s.cfg.PasswordMinLength:
		v.add("password", fmt.Sprintf("is too short (minimum is %d characters)", s.cfg.PasswordMinLength))
	case len(pw) > s.cfg.PasswordMaxLength:
		v.add("password", fmt.Sprintf("is too long (maximum is %d characters)", s.cfg.PasswordMaxLength))
	case pw != confirmation:
		v.add("password_confirmation", "doesn't match password")
	}
}
