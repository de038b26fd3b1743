package service

import (
	"context"
	"fmt"
	"time"

	"hotspotportal/internal/models"
	"hotspotportal/internal/radacct"
)

// StatsPeriod is how many days before today the dashboard covers. Today is
// included, so the window holds StatsPeriod+1 days.
const StatsPeriod = 14

const (
	uploadColor   = "56B9F9"
	downloadColor = "FDC12E"
)

type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type LoginChart struct {
	Caption          string       `json:"caption"`
	NumberSuffix     string       `json:"number_suffix"`
	DecimalPrecision int          `json:"decimal_precision"`
	Points           []ChartPoint `json:"points"`
}

type ChartSeries struct {
	Name  string  `json:"name"`
	Color string  `json:"color"`
	Data  []int64 `json:"data"`
}

type TrafficChart struct {
	Caption           string        `json:"caption"`
	NumberSuffix      string        `json:"number_suffix"`
	FormatNumberScale int           `json:"format_number_scale"`
	DecimalPrecision  int           `json:"decimal_precision"`
	Categories        []string      `json:"categories"`
	Series            []ChartSeries `json:"series"`
	YAxisMax          int64         `json:"y_axis_max"`
}

type DashboardPage struct {
	View       View          `json:"view"`
	Account    AccountView   `json:"account"`
	ShowGraphs bool          `json:"show_graphs"`
	Logins     *LoginChart   `json:"logins,omitempty"`
	Traffic    *TrafficChart `json:"traffic,omitempty"`
}

type dayUsage struct {
	day      time.Time
	upload   int64
	download int64
	minutes  float64
}

// Dashboard resolves the account home page. Past the verification gate it
// carries usage charts for the last StatsPeriod days, or none when no
// traffic was recorded in the window.
func (s *Service) Dashboard(ctx context.Context, a models.Account, operatorPresent bool) (DashboardPage, error) {
	page := DashboardPage{View: VerificationGate(a.VerificationMethod, a.Verified, operatorPresent), Account: NewAccountView(a)}
	if page.View != ViewShow {
		return page, nil
	}
	usage, err := s.usage(ctx, a.Username)
	if err != nil {
		return DashboardPage{}, err
	}
	var max int64
	for _, u := range usage {
		if u.upload > max {
			max = u.upload
		}
		if u.download > max {
			max = u.download
		}
	}
	if max == 0 {
		return page, nil
	}
	page.ShowGraphs = true
	page.Logins = loginChart(usage)
	page.Traffic = trafficChart(usage, max)
	return page, nil
}

// usage buckets the user's sessions into one entry per day of the window,
// keyed by the day the session started.
func (s *Service) usage(ctx context.Context, username string) ([]dayUsage, error) {
	repo := s.radius.ForUser(username)
	today := repo.Today()
	from := today.AddDate(0, 0, -StatsPeriod)
	records, err := repo.StartedBetween(ctx, from, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load sessions for %s: %w", username, err)
	}

	usage := make([]dayUsage, 0, StatsPeriod+1)
	index := make(map[string]int, StatsPeriod+1)
	for day := from; !day.After(today); day = day.AddDate(0, 0, 1) {
		index[day.Format(time.DateOnly)] = len(usage)
		usage = append(usage, dayUsage{day: day})
	}

	shift := s.timeShift()
	now := s.clock.Now()
	for _, rec := range records {
		i, ok := index[rec.StartTime.In(repo.Location()).Format(time.DateOnly)]
		if !ok {
			continue
		}
		usage[i].upload += rec.InputOctets
		usage[i].download += rec.OutputOctets
		usage[i].minutes += sessionMinutes(rec, shift, now)
	}
	return usage, nil
}

// sessionMinutes is the logged-in time of one session. Open sessions run
// until now.
func sessionMinutes(rec radacct.Record, shift radacct.TimeShift, now time.Time) float64 {
	var d time.Duration
	if rec.StopTime != nil {
		d = rec.StopTime.Sub(rec.StartTime)
	} else {
		d = now.Sub(shift.Apply(rec.StartTime))
	}
	if d < 0 {
		return 0
	}
	return float64(int64(d/time.Second)) / 60.0
}

func loginChart(usage []dayUsage) *LoginChart {
	c := &LoginChart{
		Caption:      fmt.Sprintf("Last %d days login time", StatsPeriod),
		NumberSuffix: "Min",
		Points:       make([]ChartPoint, 0, len(usage)),
	}
	for _, u := range usage {
		c.Points = append(c.Points, ChartPoint{Name: u.day.Format(time.DateOnly), Value: u.minutes})
	}
	return c
}

func trafficChart(usage []dayUsage, max int64) *TrafficChart {
	up := ChartSeries{Name: "Upload", Color: uploadColor, Data: make([]int64, 0, len(usage))}
	down := ChartSeries{Name: "Download", Color: downloadColor, Data: make([]int64, 0, len(usage))}
	c := &TrafficChart{
		Caption:           fmt.Sprintf("Last %d days traffic", StatsPeriod),
		NumberSuffix:      "B",
		FormatNumberScale: 1,
		DecimalPrecision:  2,
		Categories:        make([]string, 0, len(usage)),
		YAxisMax:          max,
	}
	for _, u := range usage {
		c.Categories = append(c.Categories, u.day.Format(time.DateOnly))
		up.Data = append(up.Data, u.upload)
		down.Data = append(down.Data, u.download)
	}
	c.Series = []ChartSeries{up, down}
	return c
}
