package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hotspotportal/internal/dbx"
	"hotspotportal/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db *sql.DB
	q  dbx.DBTX
}

func New(db *sql.DB) *Store { return &Store{db: db, q: db} }

// WithTx runs fn against a Store bound to a single transaction. Called on a
// transaction-bound Store it reuses that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return dbx.WithTx(ctx, s.q, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(&Store{db: s.db, q: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const accountColumns = `id,username,email,password_hash,given_name,surname,state,mobile_prefix,mobile_suffix,verification_method,verified,verified_at,created_at,updated_at`

func (s *Store) CreateAccount(ctx context.Context, a models.Account) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts(`+accountColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.GivenName, a.Surname, a.State, a.MobilePrefix, a.MobileSuffix,
		a.VerificationMethod, boolToInt(a.Verified), a.VerifiedAt, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// AddAccountToGroup links an account to a RADIUS group by group name.
func (s *Store) AddAccountToGroup(ctx context.Context, accountID, groupName string) error {
	g, err := s.GetRadiusGroupByName(ctx, groupName)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO account_radius_groups(account_id,radius_group_id) VALUES(?,?) ON CONFLICT DO NOTHING`,
		accountID, g.ID,
	)
	return err
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (models.Account, error) {
	return s.getAccount(ctx, `id=?`, id)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	return s.getAccount(ctx, `username=?`, username)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.getAccount(ctx, `email=?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getAccount(ctx context.Context, where string, arg any) (models.Account, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	groups, err := s.accountGroups(ctx, a.ID)
	if err != nil {
		return models.Account{}, err
	}
	a.RadiusGroups = groups
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	var verified int
	var verifiedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.GivenName, &a.Surname, &a.State,
		&a.MobilePrefix, &a.MobileSuffix, &a.VerificationMethod, &verified, &verifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, err
	}
	a.Verified = verified == 1
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	return a, nil
}

func (s *Store) accountGroups(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT g.name FROM radius_groups g JOIN account_radius_groups ag ON ag.radius_group_id=g.id WHERE ag.account_id=? ORDER BY g.priority, g.name`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// UpdateAccount writes the editable profile fields and the verification state.
func (s *Store) UpdateAccount(ctx context.Context, a models.Account) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET email=?,password_hash=?,given_name=?,surname=?,state=?,mobile_prefix=?,mobile_suffix=?,verified=?,verified_at=?,updated_at=? WHERE id=?`,
		a.Email, a.PasswordHash, a.GivenName, a.Surname, a.State, a.MobilePrefix, a.MobileSuffix,
		boolToInt(a.Verified), a.VerifiedAt, a.UpdatedAt, a.ID,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return affectedOne(res, err)
}

func (s *Store) SetAccountVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET verified=1, verified_at=?, updated_at=? WHERE id=?`,
		at, at, id,
	)
	return affectedOne(res, err)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM accounts WHERE id=?`, id)
	return affectedOne(res, err)
}

func (s *Store) GetRadiusGroupByName(ctx context.Context, name string) (models.RadiusGroup, error) {
	var g models.RadiusGroup
	err := s.q.QueryRowContext(ctx, `SELECT id,name,priority FROM radius_groups WHERE name=?`, name).Scan(&g.ID, &g.Name, &g.Priority)
	if err == sql.ErrNoRows {
		return models.RadiusGroup{}, ErrNotFound
	}
	return g, err
}

func (s *Store) ListEnabledCountries(ctx context.Context) ([]models.Country, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT iso,printable_name FROM countries WHERE disabled=0 ORDER BY printable_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Country{}
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ISO, &c.PrintableName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListEnabledMobilePrefixes(ctx context.Context) ([]models.MobilePrefix, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT prefix FROM mobile_prefixes WHERE disabled=0 ORDER BY prefix`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.MobilePrefix{}
	for rows.Next() {
		var p models.MobilePrefix
		if err := rows.Scan(&p.Prefix); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) EnsureOperator(ctx context.Context, login, passwordHash string) error {
	login = strings.TrimSpace(login)
	if login == "" || passwordHash == "" {
		return nil
	}
	op, err := s.GetOperatorByLogin(ctx, login)
	if err == ErrNotFound {
		_, err = s.q.ExecContext(ctx,
			`INSERT INTO operators(id,login,password_hash,created_at) VALUES(?,?,?,?)`,
			uuid.NewString(), login, passwordHash, time.Now().UTC(),
		)
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `UPDATE operators SET password_hash=? WHERE id=?`, passwordHash, op.ID)
	return err
}

func (s *Store) GetOperatorByLogin(ctx context.Context, login string) (models.Operator, error) {
	return s.getOperator(ctx, `login=?`, login)
}

func (s *Store) GetOperatorByID(ctx context.Context, id string) (models.Operator, error) {
	return s.getOperator(ctx, `id=?`, id)
}

func (s *Store) getOperator(ctx context.Context, where string, arg any) (models.Operator, error) {
	var op models.Operator
	var lastLogin sql.NullTime
	err := s.q.QueryRowContext(ctx,
		`SELECT id,login,password_hash,created_at,last_login_at FROM operators WHERE `+where, arg,
	).Scan(&op.ID, &op.Login, &op.PasswordHash, &op.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return models.Operator{}, ErrNotFound
	}
	if err != nil {
		return models.Operator{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		op.LastLoginAt = &t
	}
	return op, nil
}

func (s *Store) TouchOperatorLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE operators SET last_login_at=? WHERE id=?`, at, id)
	return err
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions(id,principal_kind,principal_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.PrincipalKind, sess.PrincipalID, sess.TokenHash, sess.IPHint, sess.UserAgentHash, sess.ExpiresAt, sess.IdleExpiresAt, sess.CreatedAt, sess.LastSeenAt,
	)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	var sess models.Session
	var revoked sql.NullTime
	err := s.q.QueryRowContext(ctx,
		`SELECT id,principal_kind,principal_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at,revoked_at FROM sessions WHERE token_hash=?`,
		tokenHash,
	).Scan(&sess.ID, &sess.PrincipalKind, &sess.PrincipalID, &sess.TokenHash, &sess.IPHint, &sess.UserAgentHash, &sess.ExpiresAt, &sess.IdleExpiresAt, &sess.CreatedAt, &sess.LastSeenAt, &revoked)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	if revoked.Valid {
		t := revoked.Time
		sess.RevokedAt = &t
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, now, idleExpiry time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, idle_expires_at=? WHERE id=?`, now, idleExpiry, id)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, at, id)
	return err
}

func (s *Store) RevokePrincipalSessions(ctx context.Context, kind models.PrincipalKind, principalID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET revoked_at=? WHERE principal_kind=? AND principal_id=? AND revoked_at IS NULL`,
		at, kind, principalID,
	)
	return err
}

// UpsertScheduledJob records a job for the housekeeping worker, replacing the
// schedule of an existing job with the same kind and key.
func (s *Store) UpsertScheduledJob(ctx context.Context, job models.ScheduledJob) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO scheduled_jobs(job_key,kind,arg,scheduled_at,created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(kind, job_key) DO UPDATE SET arg=excluded.arg, scheduled_at=excluded.scheduled_at`,
		job.Key, job.Kind, job.Arg, job.ScheduledAt, job.CreatedAt,
	)
	return err
}

func (s *Store) GetScheduledJob(ctx context.Context, kind, key string) (models.ScheduledJob, error) {
	var j models.ScheduledJob
	err := s.q.QueryRowContext(ctx,
		`SELECT job_key,kind,arg,scheduled_at,created_at FROM scheduled_jobs WHERE kind=? AND job_key=?`,
		kind, key,
	).Scan(&j.Key, &j.Kind, &j.Arg, &j.ScheduledAt, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return models.ScheduledJob{}, ErrNotFound
	}
	return j, err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: unique")
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
