// Package radacct reads the FreeRADIUS accounting table (radacct). It answers
// per-day aggregates and per-session listings for the whole system or for a
// single username. The table is owned by the RADIUS server and never written
// here.
package radacct

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one accounting session. StopTime is nil while the session is open.
type Record struct {
	ID               int64
	UserName         string
	Realm            string
	StartTime        time.Time
	StopTime         *time.Time
	InputOctets      int64
	OutputOctets     int64
	NASIPAddress     string
	CallingStationID string
	CalledStationID  string
	FramedIPAddress  string
	TerminateCause   string
}

func (r Record) Open() bool { return r.StopTime == nil }

func (r Record) TrafficInMega() string  { return MegaBytes(r.InputOctets) }
func (r Record) TrafficOutMega() string { return MegaBytes(r.OutputOctets) }

// MegaBytes renders an octet count in MiB with two decimals.
func MegaBytes(octets int64) string {
	return fmt.Sprintf("%.2f", float64(octets)/1048576.0)
}

// TimeShift moves accounting timestamps for presentation. With
// local_time_radius_accounting enabled the RADIUS server wrote local wall
// time, so the displayed value is shifted back by the local UTC offset.
type TimeShift struct {
	offset time.Duration
}

func NewTimeShift(enabled bool, now time.Time, local *time.Location) TimeShift {
	if !enabled {
		return TimeShift{}
	}
	if local == nil {
		local = time.Local
	}
	_, off := now.In(local).Zone()
	return TimeShift{offset: -time.Duration(off) * time.Second}
}

func (s TimeShift) Offset() time.Duration { return s.offset }

func (s TimeShift) Apply(t time.Time) time.Time { return t.Add(s.offset) }

func (s TimeShift) ApplyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := s.Apply(*t)
	return &v
}

type View struct {
	ID               int64      `json:"id"`
	UserName         string     `json:"username"`
	Realm            string     `json:"realm"`
	StartTime        time.Time  `json:"acct_start_time"`
	StopTime         *time.Time `json:"acct_stop_time"`
	Online           bool       `json:"online"`
	InputOctets      int64      `json:"acct_input_octets"`
	OutputOctets     int64      `json:"acct_output_octets"`
	TrafficInMega    string     `json:"traffic_in_mega"`
	TrafficOutMega   string     `json:"traffic_out_mega"`
	NASIPAddress     string     `json:"nas_ip_address"`
	CallingStationID string     `json:"calling_station_id"`
	CalledStationID  string     `json:"called_station_id"`
	FramedIPAddress  string     `json:"framed_ip_address"`
	TerminateCause   string     `json:"acct_terminate_cause"`
}

func (r Record) View(shift TimeShift) View {
	return View{
		ID:               r.ID,
		UserName:         r.UserName,
		Realm:            r.Realm,
		StartTime:        shift.Apply(r.StartTime),
		StopTime:         shift.ApplyPtr(r.StopTime),
		Online:           r.Open(),
		InputOctets:      r.InputOctets,
		OutputOctets:     r.OutputOctets,
		TrafficInMega:    r.TrafficInMega(),
		TrafficOutMega:   r.TrafficOutMega(),
		NASIPAddress:     r.NASIPAddress,
		CallingStationID: r.CallingStationID,
		CalledStationID:  r.CalledStationID,
		FramedIPAddress:  r.FramedIPAddress,
		TerminateCause:   r.TerminateCause,
	}
}

func Views(records []Record, shift TimeShift) []View {
	out := make([]View, 0, len(records))
	for _, r := range records {
		out = append(out, r.View(shift))
	}
	return out
}

// DayValue is one point of a per-day series.
type DayValue struct {
	Day   time.Time
	Value int64
}

func (d DayValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Day       string `json:"day"`
		Timestamp int64  `json:"timestamp_ms"`
		Value     int64  `json:"value"`
	}{
		Day:       d.Day.Format(time.DateOnly),
		Timestamp: d.Day.UnixMilli(),
		Value:     d.Value,
	})
}

// stamp scans an accounting timestamp as naive wall-clock time. NULL, the
// MySQL zero date and the zero time.Time all scan as invalid. With zone set
// the scanned value is an instant and is first moved into zone.
type stamp struct {
	wall  time.Time
	valid bool
	zone  *time.Location
}

var stampLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func (s *stamp) Scan(src any) error {
	*s = stamp{zone: s.zone}
	switch v := src.(type) {
	case nil:
		return nil
	case time.Time:
		s.set(v)
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("radacct: cannot scan %T into timestamp", src)
	}
}

func (s *stamp) parse(v string) error {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "0000-00-00") {
		return nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.set(t)
			return nil
		}
	}
	return fmt.Errorf("radacct: unrecognised timestamp %q", v)
}

func (s *stamp) set(t time.Time) {
	if t.IsZero() || t.Year() <= 1 {
		return
	}
	if s.zone != nil {
		t = t.In(s.zone)
	}
	s.wall = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	s.valid = true
}

// in reads the wall clock as a time in loc.
func (s stamp) in(loc *time.Location) time.Time {
	w := s.wall
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
}

func (s stamp) ptr(loc *time.Location) *time.Time {
	if !s.valid {
		return nil
	}
	t := s.in(loc)
	return &t
}

// scanRecord reads one row. Postgres timestamptz columns arrive as instants,
// the other dialects as wall clocks already in loc.
func scanRecord(row interface{ Scan(...any) error }, loc *time.Location, instants bool) (Record, error) {
	var rec Record
	var start, stop stamp
	if instants {
		start.zone, stop.zone = loc, loc
	}
	var realm, nas, calling, called, framed, cause sql.NullString
	if err := row.Scan(&rec.ID, &rec.UserName, &realm, &start, &stop, &rec.InputOctets, &rec.OutputOctets,
		&nas, &calling, &called, &framed, &cause); err != nil {
		return Record{}, err
	}
	if !start.valid {
		return Record{}, fmt.Errorf("radacct: session %d has no start time", rec.ID)
	}
	rec.StartTime = start.in(loc)
	rec.StopTime = stop.ptr(loc)
	rec.Realm = realm.String
	rec.NASIPAddress = nas.String
	rec.CallingStationID = calling.String
	rec.CalledStationID = called.String
	rec.FramedIPAddress = framed.String
	rec.TerminateCause = cause.String
	return rec, nil
}
