package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	outgoingPath  = "/flights/search-roundtrip"
	returningPath = "/flights/roundtrip-returning"

	// Currency and sort order are fixed for every outgoing search.
	Currency  = "EUR"
	sortOrder = "2"
)

// GoogleFlights talks to the RapidAPI google-flights endpoints.
type GoogleFlights struct {
	client *Client
	log    *zap.Logger
}

func NewGoogleFlights(c *Client, log *zap.Logger) *GoogleFlights {
	if log == nil {
		log = zap.NewNop()
	}
	return &GoogleFlights{client: c, log: log.Named("google-flights")}
}

func (g *GoogleFlights) Name() string {
	return "google-flights"
}

// SearchOutgoing queries round-trip outgoing offers for one date pair. The
// API applies the duration and price ceilings; nothing is filtered here.
func (g *GoogleFlights) SearchOutgoing(ctx context.Context, q OutgoingQuery) (Results, error) {
	v := url.Values{}
	v.Set("departureId", q.DepartureID)
	v.Set("arrivalId", q.ArrivalID)
	v.Set("departureDate", q.DepartureDate)
	v.Set("arrivalDate", q.ReturnDate)
	v.Set("currency", Currency)
	v.Set("sort", sortOrder)
	v.Set("flightDuration", q.MaxDuration)
	v.Set("maxPrice", strconv.Itoa(q.MaxPrice))

	data, err := g.client.Fetch(ctx, outgoingPath, v, "")
	if err != nil {
		return Results{}, fmt.Errorf("google flights outgoing %s->%s %s/%s: %w",
			q.DepartureID, q.ArrivalID, q.DepartureDate, q.ReturnDate, err)
	}
	return g.decode(data), nil
}

// SearchReturning queries the return offers matching an outgoing offer's
// returning token.
func (g *GoogleFlights) SearchReturning(ctx context.Context, q ReturnQuery) (Results, error) {
	v := url.Values{}
	v.Set("arrivalDate", q.ReturnDate)
	v.Set("adults", strconv.Itoa(q.Adults))
	v.Set("stops", "0")
	v.Set("maxPrice", strconv.Itoa(q.MaxPrice))
	v.Set("flightDuration", q.MaxDuration)

	data, err := g.client.Fetch(ctx, returningPath, v, q.Token)
	if err != nil {
		return Results{}, fmt.Errorf("google flights returning %s: %w", q.ReturnDate, err)
	}
	return g.decode(data), nil
}

// decode treats a malformed payload as "no results" and drops invalid
// offers; both are logged.
func (g *GoogleFlights) decode(data json.RawMessage) Results {
	res, err := ParseResults(data)
	if err != nil {
		g.log.Warn("skipping unusable offers", zap.Int("kept", res.Len()), zap.Error(err))
	}
	return res
}

// FormatMaxDuration renders a per-leg duration ceiling the way the API
// expects it, e.g. 16h00.
func FormatMaxDuration(d time.Duration) string {
	total := int(d.Round(time.Minute).Minutes())
	return fmt.Sprintf("%dh%02d", total/60, total%60)
}
