package radacct

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotspotportal/internal/clock"
	"hotspotportal/internal/dbx"
)

type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its SQL dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("radacct: no dialect for driver %q", driver)
}

// Repository answers accounting queries. The zero scope covers every user;
// ForUser narrows it to one username.
type Repository struct {
	db      dbx.DBTX
	dialect Dialect
	loc     *time.Location
	clock   clock.Clock
	user    string
}

type Option func(*Repository)

// WithLocation sets the zone the RADIUS server writes its naive timestamps
// in. Calendar days start at midnight in that zone.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Repository) {
		if c != nil {
			r.clock = c
		}
	}
}

func New(db dbx.DBTX, dialect Dialect, opts ...Option) *Repository {
	r := &Repository{db: db, dialect: dialect, loc: time.Local, clock: clock.Real{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) ForUser(username string) *Repository {
	cp := *r
	cp.user = username
	return &cp
}

func (r *Repository) Location() *time.Location { return r.loc }

// Today is midnight of the current day in the repository location.
func (r *Repository) Today() time.Time {
	return startOfDay(r.clock.Now(), r.loc)
}

func (r *Repository) LoginsOn(ctx context.Context, day time.Time) (int64, error) {
	return r.countOn(ctx, day, "COUNT(*)")
}

func (r *Repository) UniqueLoginsOn(ctx context.Context, day time.Time) (int64, error) {
	return r.countOn(ctx, day, "COUNT(DISTINCT UserName)")
}

func (r *Repository) TrafficInOn(ctx context.Context, day time.Time) (int64, error) {
	in, _, err := r.trafficOn(ctx, day)
	return in, err
}

func (r *Repository) TrafficOutOn(ctx context.Context, day time.Time) (int64, error) {
	_, out, err := r.trafficOn(ctx, day)
	return out, err
}

func (r *Repository) TrafficOn(ctx context.Context, day time.Time) (int64, error) {
	in, out, err := r.trafficOn(ctx, day)
	return in + out, err
}

// LoginsEachDayFrom returns the total and distinct-user login counts for
// every day from start through today. Both series are empty when start lies
// after today.
func (r *Repository) LoginsEachDayFrom(ctx context.Context, start time.Time) (total, unique []DayValue, err error) {
	total, unique = []DayValue{}, []DayValue{}
	for _, day := range r.days(start) {
		n, err := r.LoginsOn(ctx, day)
		if err != nil {
			return nil, nil, err
		}
		u, err := r.UniqueLoginsOn(ctx, day)
		if err != nil {
			return nil, nil, err
		}
		total = append(total, DayValue{Day: day, Value: n})
		unique = append(unique, DayValue{Day: day, Value: u})
	}
	return total, unique, nil
}

// TrafficEachDayFrom returns total, input and output octets per day from
// start through today.
func (r *Repository) TrafficEachDayFrom(ctx context.Context, start time.Time) (total, in, out []DayValue, err error) {
	total, in, out = []DayValue{}, []DayValue{}, []DayValue{}
	for _, day := range r.days(start) {
		i, o, err := r.trafficOn(ctx, day)
		if err != nil {
			return nil, nil, nil, err
		}
		total = append(total, DayValue{Day: day, Value: i + o})
		in = append(in, DayValue{Day: day, Value: i})
		out = append(out, DayValue{Day: day, Value: o})
	}
	return total, in, out, nil
}

// LastLogins returns the n most recently started sessions.
func (r *Repository) LastLogins(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}
	where, args := r.scope("")
	return r.query(ctx, `SELECT `+r.columns()+` FROM radacct`+where+` ORDER BY AcctStartTime DESC, RadAcctId DESC LIMIT ?`, append(args, n)...)
}

// OnlineUsers returns the n most recently started sessions that are still open.
func (r *Repository) OnlineUsers(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}
	where, args := r.scope(r.openCondition())
	return r.query(ctx, `SELECT `+r.columns()+` FROM radacct`+where+` ORDER BY AcctStartTime DESC, RadAcctId DESC LIMIT ?`, append(args, n)...)
}

// StartedBetween returns sessions whose start falls in [from, to), oldest first.
func (r *Repository) StartedBetween(ctx context.Context, from, to time.Time) ([]Record, error) {
	where, args := r.scope("AcctStartTime >= ? AND AcctStartTime < ?", r.bound(from), r.bound(to))
	return r.query(ctx, `SELECT `+r.columns()+` FROM radacct`+where+` ORDER BY AcctStartTime ASC, RadAcctId ASC`, args...)
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	where, args := r.scope("")
	var n int64
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM radacct`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count radacct: %w", err)
	}
	return n, nil
}

// Ping checks the accounting table is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM radacct LIMIT 1`).Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ping radacct: %w", err)
	}
	return nil
}

func (r *Repository) countOn(ctx context.Context, day time.Time, expr string) (int64, error) {
	from, to := r.dayBounds(day)
	where, args := r.scope("AcctStartTime >= ? AND AcctStartTime < ?", from, to)
	var n int64
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+expr+` FROM radacct`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count logins on %s: %w", day.Format(time.DateOnly), err)
	}
	return n, nil
}

func (r *Repository) trafficOn(ctx context.Context, day time.Time) (in, out int64, err error) {
	from, to := r.dayBounds(day)
	where, args := r.scope("AcctStartTime >= ? AND AcctStartTime < ?", from, to)
	q := `SELECT COALESCE(SUM(AcctInputOctets),0), COALESCE(SUM(AcctOutputOctets),0) FROM radacct` + where
	if err := r.db.QueryRowContext(ctx, r.rebind(q), args...).Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("sum traffic on %s: %w", day.Format(time.DateOnly), err)
	}
	return in, out, nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query radacct: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, r.loc, r.dialect == Postgres)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// days lists midnight of every day from start through today.
func (r *Repository) days(start time.Time) []time.Time {
	today := r.Today()
	var out []time.Time
	for day := startOfDay(start, r.loc); !day.After(today); day = day.AddDate(0, 0, 1) {
		out = append(out, day)
	}
	return out
}

func (r *Repository) dayBounds(day time.Time) (from, to any) {
	start := startOfDay(day, r.loc)
	return r.bound(start), r.bound(start.AddDate(0, 0, 1))
}

// bound renders t as a query argument. Postgres compares timestamptz columns
// against the instant; the naive dialects get the wall clock in the
// repository location.
func (r *Repository) bound(t time.Time) any {
	t = t.In(r.loc)
	if r.dialect == Postgres {
		return t
	}
	return t.Format(time.DateTime)
}

// scope joins cond with the username filter into a WHERE clause.
func (r *Repository) scope(cond string, args ...any) (string, []any) {
	var parts []string
	if cond != "" {
		parts = append(parts, "("+cond+")")
	}
	if r.user != "" {
		parts = append(parts, "UserName = ?")
		args = append(args, r.user)
	}
	if len(parts) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func (r *Repository) openCondition() string {
	if r.dialect == Postgres {
		return "AcctStopTime IS NULL"
	}
	return "AcctStopTime IS NULL OR AcctStopTime = '0000-00-00 00:00:00'"
}

func (r *Repository) columns() string {
	text := func(col string) string { return col }
	if r.dialect == Postgres {
		// inet columns in the FreeRADIUS PostgreSQL schema
		text = func(col string) string { return col + "::text" }
	}
	return strings.Join([]string{
		"RadAcctId",
		"UserName",
		"Realm",
		"AcctStartTime",
		"AcctStopTime",
		"COALESCE(AcctInputOctets,0)",
		"COALESCE(AcctOutputOctets,0)",
		text("NASIPAddress"),
		"CallingStationId",
		"CalledStationId",
		text("FramedIPAddress"),
		"AcctTerminateCause",
	}, ", ")
}

func (r *Repository) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
