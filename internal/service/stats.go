package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"hotspotportal/internal/radacct"
)

const (
	// MaxStatsDays bounds the per-day series an operator can request.
	MaxStatsDays = 366

	defaultListLimit = 5
	maxListLimit     = 100
)

var ErrInvalidRange = errors.New("invalid date range")

type DayStats struct {
	Day          string `json:"day"`
	Logins       int64  `json:"logins"`
	UniqueLogins int64  `json:"unique_logins"`
	TrafficIn    int64  `json:"traffic_in"`
	TrafficOut   int64  `json:"traffic_out"`
	Traffic      int64  `json:"traffic"`
}

type LoginSeries struct {
	Total  []radacct.DayValue `json:"total"`
	Unique []radacct.DayValue `json:"unique"`
}

type TrafficSeries struct {
	Total []radacct.DayValue `json:"total"`
	In    []radacct.DayValue `json:"in"`
	Out   []radacct.DayValue `json:"out"`
}

// ParseDay reads a YYYY-MM-DD date in the accounting location. An empty
// value means today.
func (s *Service) ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.radius.Today(), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, s.radius.Location())
	if err != nil {
		return time.Time{}, ErrInvalidRange
	}
	return day, nil
}

// ParseLimit reads a list size, defaulting to 5 and capped at 100.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

func (s *Service) DayStats(ctx context.Context, day time.Time) (DayStats, error) {
	logins, err := s.radius.LoginsOn(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	unique, err := s.radius.UniqueLoginsOn(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	in, err := s.radius.TrafficInOn(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	out, err := s.radius.TrafficOutOn(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	return DayStats{
		Day:          day.Format(time.DateOnly),
		Logins:       logins,
		UniqueLogins: unique,
		TrafficIn:    in,
		TrafficOut:   out,
		Traffic:      in + out,
	}, nil
}

func (s *Service) LoginsFrom(ctx context.Context, from time.Time) (LoginSeries, error) {
	if err := s.checkRange(from); err != nil {
		return LoginSeries{}, err
	}
	total, unique, err := s.radius.LoginsEachDayFrom(ctx, from)
	if err != nil {
		return LoginSeries{}, err
	}
	return LoginSeries{Total: total, Unique: unique}, nil
}

func (s *Service) TrafficFrom(ctx context.Context, from time.Time) (TrafficSeries, error) {
	if err := s.checkRange(from); err != nil {
		return TrafficSeries{}, err
	}
	total, in, out, err := s.radius.TrafficEachDayFrom(ctx, from)
	if err != nil {
		return TrafficSeries{}, err
	}
	return TrafficSeries{Total: total, In: in, Out: out}, nil
}

func (s *Service) LastLogins(ctx context.Context, n int) ([]radacct.View, error) {
	records, err := s.radius.LastLogins(ctx, n)
	if err != nil {
		return nil, err
	}
	return radacct.Views(records, s.timeShift()), nil
}

func (s *Service) OnlineUsers(ctx context.Context, n int) ([]radacct.View, error) {
	records, err := s.radius.OnlineUsers(ctx, n)
	if err != nil {
		return nil, err
	}
	return radacct.Views(records, s.timeShift()), nil
}

// checkRange rejects a start day after today or more than MaxStatsDays back.
func (s *Service) checkRange(from time.Time) error {
	today := s.radius.Today()
	if from.After(today) || from.Before(today.AddDate(0, 0, -(MaxStatsDays-1))) {
		return ErrInvalidRange
	}
	return nil
}
