package radacct

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hotspotportal/internal/clock"
	"hotspotportal/internal/db"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type session struct {
	user  string
	start string
	stop  any
	in    int64
	out   int64
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "radius.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	require.NoError(t, db.Migrate(context.Background(), sqdb))
	return sqdb
}

func seed(t *testing.T, sqdb *sql.DB, sessions ...session) {
	t.Helper()
	for _, s := range sessions {
		_, err := sqdb.Exec(
			`INSERT INTO radacct(UserName,Realm,AcctStartTime,AcctStopTime,AcctInputOctets,AcctOutputOctets,NASIPAddress,CallingStationId,CalledStationId,FramedIPAddress,AcctTerminateCause)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			s.user, "", s.start, s.stop, s.in, s.out, "10.0.0.1", "AA-BB-CC-DD-EE-FF", "hotspot-1", "192.168.1.20", "User-Request",
		)
		require.NoError(t, err)
	}
}

func newTestRepo(t *testing.T, sessions ...session) *Repository {
	t.Helper()
	sqdb := newTestDB(t)
	seed(t, sqdb, sessions...)
	return New(sqdb, SQLite, WithLocation(time.UTC), WithClock(clock.NewFixed(testNow)))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLoginsOnUsesStartDay(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-08 23:59:00", stop: "2026-03-09 00:30:00"},
		session{user: "alice", start: "2026-03-09 08:00:00", stop: "2026-03-09 09:00:00"},
		session{user: "bob", start: "2026-03-09 10:00:00", stop: nil},
		session{user: "alice", start: "2026-03-09 23:59:59", stop: "2026-03-10 01:00:00"},
	)
	ctx := context.Background()

	n, err := repo.LoginsOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	u, err := repo.UniqueLoginsOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	require.EqualValues(t, 2, u)

	n, err = repo.LoginsOn(ctx, day(2026, 3, 8))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = repo.LoginsOn(ctx, day(2026, 3, 10))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLoginsOnIgnoresTimeOfDayArgument(t *testing.T) {
	repo := newTestRepo(t, session{user: "alice", start: "2026-03-09 08:00:00"})
	n, err := repo.LoginsOn(context.Background(), time.Date(2026, 3, 9, 22, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestTrafficOnSumsBothDirections(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-09 08:00:00", in: 100, out: 1000},
		session{user: "bob", start: "2026-03-09 09:00:00", in: 50, out: 500},
		session{user: "bob", start: "2026-03-10 09:00:00", in: 7, out: 7},
	)
	ctx := context.Background()

	in, err := repo.TrafficInOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	out, err := repo.TrafficOutOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	total, err := repo.TrafficOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)

	require.EqualValues(t, 150, in)
	require.EqualValues(t, 1500, out)
	require.Equal(t, in+out, total)
}

func TestTrafficOnEmptyDayIsZero(t *testing.T) {
	repo := newTestRepo(t)
	total, err := repo.TrafficOn(context.Background(), day(2026, 1, 1))
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestForUserScopesQueries(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-09 08:00:00", in: 100, out: 1000},
		session{user: "bob", start: "2026-03-09 09:00:00", in: 50, out: 500},
		session{user: "bob", start: "2026-03-09 10:00:00", in: 5, out: 5},
	)
	ctx := context.Background()

	alice := repo.ForUser("alice")
	n, err := alice.LoginsOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	in, err := repo.ForUser("bob").TrafficInOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	require.EqualValues(t, 55, in)

	all, err := repo.LoginsOn(ctx, day(2026, 3, 9))
	require.NoError(t, err)
	require.EqualValues(t, 3, all, "ForUser must not mutate the parent scope")
}

func TestLoginsEachDayFrom(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-07 08:00:00"},
		session{user: "alice", start: "2026-03-07 09:00:00"},
		session{user: "bob", start: "2026-03-09 09:00:00"},
		session{user: "bob", start: "2026-03-10 09:00:00"},
	)
	total, unique, err := repo.LoginsEachDayFrom(context.Background(), day(2026, 3, 6))
	require.NoError(t, err)

	require.Len(t, total, 5)
	require.Len(t, unique, 5)
	for i := range total {
		require.True(t, total[i].Day.Equal(unique[i].Day))
		if i > 0 {
			require.True(t, total[i].Day.After(total[i-1].Day))
		}
	}
	require.True(t, total[0].Day.Equal(day(2026, 3, 6)))
	require.True(t, total[4].Day.Equal(day(2026, 3, 10)))

	values := func(series []DayValue) []int64 {
		out := make([]int64, 0, len(series))
		for _, v := range series {
			out = append(out, v.Value)
		}
		return out
	}
	require.Equal(t, []int64{0, 2, 0, 1, 1}, values(total))
	require.Equal(t, []int64{0, 1, 0, 1, 1}, values(unique))
}

func TestLoginsEachDayFromFutureStartIsEmpty(t *testing.T) {
	repo := newTestRepo(t, session{user: "alice", start: "2026-03-10 08:00:00"})
	total, unique, err := repo.LoginsEachDayFrom(context.Background(), day(2026, 3, 11))
	require.NoError(t, err)
	require.Empty(t, total)
	require.Empty(t, unique)
	require.NotNil(t, total)

	total, _, err = repo.LoginsEachDayFrom(context.Background(), day(2026, 3, 10))
	require.NoError(t, err)
	require.Len(t, total, 1)
	require.EqualValues(t, 1, total[0].Value)
}

func TestTrafficEachDayFromTotalsMatch(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-08 08:00:00", in: 10, out: 20},
		session{user: "bob", start: "2026-03-10 09:00:00", in: 1, out: 2},
	)
	total, in, out, err := repo.TrafficEachDayFrom(context.Background(), day(2026, 3, 8))
	require.NoError(t, err)
	require.Len(t, total, 3)
	require.Len(t, in, 3)
	require.Len(t, out, 3)
	for i := range total {
		require.Equal(t, in[i].Value+out[i].Value, total[i].Value)
	}
	require.EqualValues(t, 30, total[0].Value)
	require.EqualValues(t, 0, total[1].Value)
	require.EqualValues(t, 3, total[2].Value)
}

func TestOnlineUsersTreatsZeroDateAsOpen(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "closed", start: "2026-03-10 07:00:00", stop: "2026-03-10 08:00:00"},
		session{user: "null-stop", start: "2026-03-10 09:00:00", stop: nil},
		session{user: "zero-stop", start: "2026-03-10 10:00:00", stop: "0000-00-00 00:00:00"},
	)
	recs, err := repo.OnlineUsers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "zero-stop", recs[0].UserName)
	require.Equal(t, "null-stop", recs[1].UserName)
	for _, r := range recs {
		require.Nil(t, r.StopTime)
		require.True(t, r.Open())
	}

	recs, err = repo.OnlineUsers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestLastLoginsOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "a", start: "2026-03-01 07:00:00", stop: "2026-03-01 08:00:00"},
		session{user: "b", start: "2026-03-03 07:00:00", stop: "2026-03-03 08:00:00"},
		session{user: "c", start: "2026-03-02 07:00:00", stop: nil},
	)
	recs, err := repo.LastLogins(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "b", recs[0].UserName)
	require.Equal(t, "c", recs[1].UserName)

	recs, err = repo.LastLogins(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestRecordFieldsScan(t *testing.T) {
	repo := newTestRepo(t, session{user: "alice", start: "2026-03-09 08:00:00", stop: "2026-03-09 09:30:00", in: 1048576, out: 1572864})
	recs, err := repo.LastLogins(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	require.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), r.StartTime)
	require.NotNil(t, r.StopTime)
	require.Equal(t, time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC), *r.StopTime)
	require.Equal(t, "10.0.0.1", r.NASIPAddress)
	require.Equal(t, "AA-BB-CC-DD-EE-FF", r.CallingStationID)
	require.Equal(t, "hotspot-1", r.CalledStationID)
	require.Equal(t, "192.168.1.20", r.FramedIPAddress)
	require.Equal(t, "User-Request", r.TerminateCause)
	require.Equal(t, "1.00", r.TrafficInMega())
	require.Equal(t, "1.50", r.TrafficOutMega())
}

func TestStartedBetweenHalfOpen(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "a", start: "2026-03-09 00:00:00"},
		session{user: "b", start: "2026-03-09 12:00:00"},
		session{user: "c", start: "2026-03-10 00:00:00"},
	)
	recs, err := repo.StartedBetween(context.Background(), day(2026, 3, 9), day(2026, 3, 10))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "a", recs[0].UserName)
	require.Equal(t, "b", recs[1].UserName)
}

func TestCalendarDayFollowsRepositoryLocation(t *testing.T) {
	sqdb := newTestDB(t)
	seed(t, sqdb,
		session{user: "a", start: "2026-03-10 00:30:00"},
		session{user: "b", start: "2026-03-09 23:30:00"},
	)
	rome := time.FixedZone("CET", 3600)
	repo := New(sqdb, SQLite, WithLocation(rome), WithClock(clock.NewFixed(testNow)))

	// 23:15 UTC on the 9th is already the 10th in rome.
	n, err := repo.LoginsOn(context.Background(), time.Date(2026, 3, 9, 23, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	recs, err := repo.LastLogins(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, rome, recs[0].StartTime.Location())
	require.Equal(t, 0, recs[0].StartTime.Hour())
}

func TestTodayUsesRepositoryClock(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC))
	repo := New(nil, SQLite, WithLocation(time.FixedZone("X", 2*3600)), WithClock(c))
	require.Equal(t, 11, repo.Today().Day())
	require.Equal(t, 0, repo.Today().Hour())
}

func TestRebindPostgres(t *testing.T) {
	repo := New(nil, Postgres)
	require.Equal(t, "a = $1 AND b = $2 LIMIT $3", repo.rebind("a = ? AND b = ? LIMIT ?"))
	require.Equal(t, "a = ?", New(nil, MySQL).rebind("a = ?"))
}

func TestDayBoundsPerDialect(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, cet)

	from, to := New(nil, Postgres, WithLocation(cet)).dayBounds(day)
	require.IsType(t, time.Time{}, from)
	require.True(t, from.(time.Time).Equal(time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)), "from=%v", from)
	require.True(t, to.(time.Time).Equal(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)), "to=%v", to)

	from, to = New(nil, MySQL, WithLocation(cet)).dayBounds(day)
	require.Equal(t, "2026-03-10 00:00:00", from)
	require.Equal(t, "2026-03-11 00:00:00", to)
}

func TestOpenConditionPerDialect(t *testing.T) {
	require.Equal(t, "AcctStopTime IS NULL", New(nil, Postgres).openCondition())
	require.Contains(t, New(nil, MySQL).openCondition(), "0000-00-00 00:00:00")
	require.Contains(t, New(nil, SQLite).openCondition(), "IS NULL")
}

func TestDialectForDriver(t *testing.T) {
	for driver, want := range map[string]Dialect{"mysql": MySQL, "pgx": Postgres, "sqlite": SQLite} {
		got, err := DialectForDriver(driver)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := DialectForDriver("mssql")
	require.Error(t, err)
}

func TestPingOnEmptyTable(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Ping(context.Background()))
}
