package radacct

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMegaBytes(t *testing.T) {
	cases := map[int64]string{
		0:          "0.00",
		1048576:    "1.00",
		1572864:    "1.50",
		5242880000: "5000.00",
		10:         "0.00",
	}
	for octets, want := range cases {
		require.Equal(t, want, MegaBytes(octets), "octets=%d", octets)
	}
}

func TestTimeShift(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	local := time.FixedZone("CEST", 2*3600)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	off := NewTimeShift(false, now, local)
	require.Equal(t, start, off.Apply(start))
	require.Zero(t, off.Offset())

	on := NewTimeShift(true, now, local)
	require.Equal(t, -2*time.Hour, on.Offset())
	require.Equal(t, start.Add(-2*time.Hour), on.Apply(start))
	require.Nil(t, on.ApplyPtr(nil))
}

func TestRecordViewAppliesShift(t *testing.T) {
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	stop := start.Add(90 * time.Minute)
	rec := Record{ID: 7, UserName: "alice", StartTime: start, StopTime: &stop, InputOctets: 2097152, OutputOctets: 524288}

	shift := NewTimeShift(true, start, time.FixedZone("CET", 3600))
	v := rec.View(shift)
	require.Equal(t, start.Add(-time.Hour), v.StartTime)
	require.NotNil(t, v.StopTime)
	require.Equal(t, stop.Add(-time.Hour), *v.StopTime)
	require.False(t, v.Online)
	require.Equal(t, "2.00", v.TrafficInMega)
	require.Equal(t, "0.50", v.TrafficOutMega)

	rec.StopTime = nil
	v = rec.View(TimeShift{})
	require.True(t, v.Online)
	require.Nil(t, v.StopTime)
}

func TestStampScan(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	want := time.Date(2026, 3, 9, 10, 0, 0, 0, loc)

	cases := []struct {
		name  string
		src   any
		valid bool
	}{
		{"nil", nil, false},
		{"zero date string", "0000-00-00 00:00:00", false},
		{"zero date bytes", []byte("0000-00-00 00:00:00"), false},
		{"zero time", time.Time{}, false},
		{"empty", "", false},
		{"naive string", "2026-03-09 10:00:00", true},
		{"naive bytes", []byte("2026-03-09 10:00:00"), true},
		{"driver time keeps wall clock", time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), true},
		{"offset string keeps wall clock", "2026-03-09 10:00:00+05:00", true},
		{"iso", "2026-03-09T10:00:00Z", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s stamp
			require.NoError(t, s.Scan(tc.src))
			require.Equal(t, tc.valid, s.valid)
			if tc.valid {
				require.True(t, want.Equal(s.in(loc)), "got %s", s.in(loc))
			} else {
				require.Nil(t, s.ptr(loc))
			}
		})
	}
}

func TestStampScanInstantMovesIntoZone(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	for _, src := range []any{
		time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC),
		"2026-03-09 23:30:00+00",
	} {
		s := stamp{zone: cet}
		require.NoError(t, s.Scan(src))
		require.True(t, s.valid)
		got := s.in(cet)
		require.Equal(t, 10, got.Day(), "src=%v", src)
		require.Equal(t, 0, got.Hour())
		require.Equal(t, 30, got.Minute())
	}
}

func TestStampScanRejectsGarbage(t *testing.T) {
	var s stamp
	require.Error(t, s.Scan("yesterday"))
	require.Error(t, s.Scan(42))
}

func TestDayValueJSON(t *testing.T) {
	d := DayValue{Day: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Value: 12}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `{"day":"2026-03-09","timestamp_ms":1773014400000,"value":12}`, string(b))
}
