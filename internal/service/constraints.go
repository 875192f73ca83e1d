package service

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidConstraints = errors.New("invalid search constraints")

// Constraints parameterize one sweep over the date grid.
type Constraints struct {
	DepartureID       string        `json:"departure_id"`
	ArrivalID         string        `json:"arrival_id"`
	DepartureStart    time.Time     `json:"departure_start"`
	DepartureEnd      time.Time     `json:"departure_end"`
	MinDurationDays   int           `json:"min_duration_days"`
	MaxDurationDays   int           `json:"max_duration_days"`
	MaxFlightDuration time.Duration `json:"max_flight_duration"`
	MaxPrice          int           `json:"max_price"`
	Adults            int           `json:"adults"`
	MaxFlights        int           `json:"max_flights"`
	RoundTrip         bool          `json:"round_trip"`
}

func (c Constraints) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DepartureID) == "" {
		problems = append(problems, "departure airport is required")
	}
	if strings.TrimSpace(c.ArrivalID) == "" {
		problems = append(problems, "arrival airport is required")
	}
	if !c.DepartureStart.Before(c.DepartureEnd) {
		problems = append(problems, "earliest departure must be before latest departure")
	}
	if c.MinDurationDays < 0 || c.MinDurationDays > c.MaxDurationDays {
		problems = append(problems, "min trip length must be between 0 and max trip length")
	}
	if c.MaxFlightDuration <= 0 {
		problems = append(problems, "max flight duration must be positive")
	}
	if c.MaxPrice <= 0 {
		problems = append(problems, "max price must be positive")
	}
	if c.Adults < 1 {
		problems = append(problems, "at least one adult is required")
	}
	if c.MaxFlights < 1 {
		problems = append(problems, "max flights must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConstraints, strings.Join(problems, "; "))
	}
	return nil
}

type DatePair struct {
	Departure time.Time
	Return    time.Time
}

func (p DatePair) DepartureDate() string { return p.Departure.Format(DateLayout) }
func (p DatePair) ReturnDate() string    { return p.Return.Format(DateLayout) }

// DatePairs enumerates the date grid. Departure dates start one day after
// DepartureStart and stop before DepartureEnd; neither boundary date is
// searched. Return dates run from departure+MinDurationDays up to, but
// excluding, departure+MaxDurationDays.
func (c Constraints) DatePairs() iter.Seq[DatePair] {
	return func(yield func(DatePair) bool) {
		for d := 1; ; d++ {
			dep := c.DepartureStart.AddDate(0, 0, d)
			if !dep.Before(c.DepartureEnd) {
				return
			}
			earliest := dep.AddDate(0, 0, c.MinDurationDays)
			latest := dep.AddDate(0, 0, c.MaxDurationDays)
			for r := 0; ; r++ {
				ret := earliest.AddDate(0, 0, r)
				if !ret.Before(latest) {
					break
				}
				if !yield(DatePair{Departure: dep, Return: ret}) {
					return
				}
			}
		}
	}
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", ErrInvalidConstraints, s)
	}
	return t, nil
}
