package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hotspotportal/internal/auth"
	"hotspotportal/internal/clock"
	"hotspotportal/internal/config"
	"hotspotportal/internal/jobs"
	"hotspotportal/internal/logging"
	"hotspotportal/internal/models"
	"hotspotportal/internal/radacct"
	"hotspotportal/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
)

type Service struct {
	cfg    config.Config
	st     *store.Store
	radius *radacct.Repository
	jobs   jobs.Enqueuer
	log    logging.Logger
	clock  clock.Clock
	local  *time.Location
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocalZone sets the zone whose UTC offset local_time_radius_accounting
// shifts by. Defaults to time.Local.
func WithLocalZone(loc *time.Location) Option {
	return func(s *Service) { s.local = loc }
}

func New(cfg config.Config, st *store.Store, radius *radacct.Repository, enq jobs.Enqueuer, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.Discard()
	}
	if enq == nil {
		enq = jobs.LogEnqueuer{Log: log}
	}
	s := &Service{cfg: cfg, st: st, radius: radius, jobs: enq, log: log, clock: clock.Real{}, local: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) timeShift() radacct.TimeShift {
	return radacct.NewTimeShift(s.cfg.Portal.LocalTimeRadiusAccounting, s.clock.Now(), s.local)
}

// Login opens an account session. login is a username or an email address.
// Unverified accounts may log in; the verification gate decides what they see.
func (s *Service) Login(ctx context.Context, login, password, ip, userAgent string) (string, models.Account, error) {
	login = strings.TrimSpace(login)
	a, err := s.st.GetAccountByUsername(ctx, login)
	if errors.Is(err, store.ErrNotFound) && strings.Contains(login, "@") {
		a, err = s.st.GetAccountByEmail(ctx, login)
	}
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", models.Account{}, err
		}
		return "", models.Account{}, ErrInvalidCredentials
	}
	if !auth.VerifyPassword(a.PasswordHash, password) {
		return "", models.Account{}, ErrInvalidCredentials
	}
	raw, err := s.openSession(ctx, s.st, models.PrincipalAccount, a.ID, ip, userAgent)
	if err != nil {
		return "", models.Account{}, err
	}
	return raw, a, nil
}

// ValidateSession resolves an account cookie. A live session whose account
// was removed by housekeeping yields ErrAccountNotFound.
func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.Account, models.Session, error) {
	sess, err := s.liveSession(ctx, rawToken, models.PrincipalAccount)
	if err != nil {
		return models.Account{}, models.Session{}, err
	}
	a, err := s.st.GetAccountByID(ctx, sess.PrincipalID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, sess, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, models.Session{}, err
	}
	return a, sess, nil
}

func (s *Service) OperatorLogin(ctx context.Context, login, password, ip, userAgent string) (string, models.Operator, error) {
	op, err := s.st.GetOperatorByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", models.Operator{}, err
		}
		return "", models.Operator{}, ErrInvalidCredentials
	}
	if !auth.VerifyPassword(op.PasswordHash, password) {
		return "", models.Operator{}, ErrInvalidCredentials
	}
	raw, err := s.openSession(ctx, s.st, models.PrincipalOperator, op.ID, ip, userAgent)
	if err != nil {
		return "", models.Operator{}, err
	}
	_ = s.st.TouchOperatorLastLogin(ctx, op.ID, s.now())
	return raw, op, nil
}

func (s *Service) ValidateOperatorSession(ctx context.Context, rawToken string) (models.Operator, models.Session, error) {
	sess, err := s.liveSession(ctx, rawToken, models.PrincipalOperator)
	if err != nil {
		return models.Operator{}, models.Session{}, err
	}
	op, err := s.st.GetOperatorByID(ctx, sess.PrincipalID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Operator{}, models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Operator{}, models.Session{}, err
	}
	return op, sess, nil
}

// Logout revokes the session behind a cookie of either principal kind.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil
	}
	return s.st.RevokeSession(ctx, sess.ID, s.now())
}

func (s *Service) EnsureBootstrapOperator(ctx context.Context, login, password string) error {
	if strings.TrimSpace(login) == "" || password == "" {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.st.EnsureOperator(ctx, login, hash)
}

func (s *Service) openSession(ctx context.Context, st *store.Store, kind models.PrincipalKind, principalID, ip, userAgent string) (string, error) {
	raw, tokenHash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := models.Session{
		ID:            uuid.NewString(),
		PrincipalKind: kind,
		PrincipalID:   principalID,
		TokenHash:     tokenHash,
		IPHint:        ip,
		UserAgentHash: auth.Fingerprint(userAgent),
		ExpiresAt:     now.Add(s.cfg.SessionAbsoluteDuration()),
		IdleExpiresAt: now.Add(s.cfg.SessionIdleDuration()),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return raw, nil
}

func (s *Service) liveSession(ctx context.Context, rawToken string, kind models.PrincipalKind) (models.Session, error) {
	if rawToken == "" {
		return models.Session{}, ErrInvalidCredentials
	}
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if errors.Is(err, store.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	now := s.now()
	if sess.PrincipalKind != kind || sess.RevokedAt != nil || now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		return models.Session{}, ErrInvalidCredentials
	}
	_ = s.st.TouchSession(ctx, sess.ID, now, now.Add(s.cfg.SessionIdleDuration()))
	return sess, nil
}

// Ready pings the portal database and the accounting database. The map holds
// one error, or nil, per component.
func (s *Service) Ready(ctx context.Context) map[string]error {
	return map[string]error{
		"app_db":    s.st.Ping(ctx),
		"radius_db": s.radius.Ping(ctx),
	}
}
