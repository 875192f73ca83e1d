package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Segment is one flown leg of an offer, in flight order.
type Segment struct {
	AirlineCode        string `json:"airline_code"`
	AirlineName        string `json:"airline_name"`
	FlightNumber       string `json:"flight_number"`
	FlightID           string `json:"flight_id"`
	ArrivalAirportCode string `json:"arrival_airport_code"`
	ArrivalTime        string `json:"arrival_time"`
}

// Code is the carrier code followed by the flight number, e.g. "TK1724".
func (s Segment) Code() string {
	return s.AirlineCode + s.FlightNumber
}

// Offer is one priced flight option as returned by the remote search API.
type Offer struct {
	Price          float64   `json:"price"`
	DurationMin    int       `json:"duration_min"`
	Stops          int       `json:"stops"`
	DepartureDate  string    `json:"departure_date"`
	DepartureTime  string    `json:"departure_time"`
	ArrivalDate    string    `json:"arrival_date"`
	ArrivalTime    string    `json:"arrival_time"`
	Airlines       []string  `json:"airlines"`
	Segments       []Segment `json:"segments"`
	ReturningToken string    `json:"returning_token,omitempty"`
}

// Airline is the marketing airline of the offer, falling back to the
// airline of the first segment.
func (o Offer) Airline() string {
	if len(o.Airlines) > 0 && o.Airlines[0] != "" {
		return o.Airlines[0]
	}
	if len(o.Segments) > 0 {
		return o.Segments[0].AirlineName
	}
	return ""
}

// Results holds the two offer lists of a search response, in API order.
type Results struct {
	TopFlights   []Offer
	OtherFlights []Offer
}

// All returns the top flights followed by the other flights.
func (r Results) All() []Offer {
	out := make([]Offer, 0, len(r.TopFlights)+len(r.OtherFlights))
	out = append(out, r.TopFlights...)
	return append(out, r.OtherFlights...)
}

func (r Results) Len() int { return len(r.TopFlights) + len(r.OtherFlights) }

type OutgoingQuery struct {
	DepartureID   string
	ArrivalID     string
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // YYYY-MM-DD
	MaxDuration   string // e.g. 16h00
	MaxPrice      int
}

type ReturnQuery struct {
	Token       string
	ReturnDate  string
	Adults      int
	MaxDuration string
	MaxPrice    int
}

// FlightSearcher is the remote flight-pricing API as seen by the grid search.
type FlightSearcher interface {
	Name() string
	SearchOutgoing(ctx context.Context, q OutgoingQuery) (Results, error)
	SearchReturning(ctx context.Context, q ReturnQuery) (Results, error)
}

// flexString accepts both JSON strings and numbers; flight ids come as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type wireSegment struct {
	FlightID           *flexString `json:"flightId"`
	ArrivalAirportCode string      `json:"arrivalAirportCode"`
	ArrivalTime        string      `json:"arrivalTime"`
	Airline            *struct {
		AirlineCode  string     `json:"airlineCode"`
		AirlineName  string     `json:"airlineName"`
		FlightNumber flexString `json:"flightNumber"`
	} `json:"airline"`
}

type wireOffer struct {
	Price          *float64 `json:"price"`
	Duration       *int     `json:"duration"`
	Stops          int      `json:"stops"`
	DepartureDate  string   `json:"departureDate"`
	DepartureTime  string   `json:"departureTime"`
	ArrivalDate    string   `json:"arrivalDate"`
	ArrivalTime    string   `json:"arrivalTime"`
	ReturningToken string   `json:"returningToken"`
	Airline        []struct {
		AirlineName string `json:"airlineName"`
	} `json:"airline"`
	Segments []wireSegment `json:"segments"`
}

// ParseOffer decodes a single offer object. It fails when a field needed
// to build a result row is missing, instead of producing blank cells.
func ParseOffer(raw json.RawMessage) (Offer, error) {
	var w wireOffer
	if err := json.Unmarshal(raw, &w); err != nil {
		return Offer{}, fmt.Errorf("decode offer: %w", err)
	}
	switch {
	case w.Price == nil:
		return Offer{}, errors.New("offer: missing price")
	case w.Duration == nil:
		return Offer{}, errors.New("offer: missing duration")
	case w.DepartureDate == "":
		return Offer{}, errors.New("offer: missing departureDate")
	case w.DepartureTime == "":
		return Offer{}, errors.New("offer: missing departureTime")
	case len(w.Segments) == 0:
		return Offer{}, errors.New("offer: missing segments")
	}

	o := Offer{
		Price:          *w.Price,
		DurationMin:    *w.Duration,
		Stops:          w.Stops,
		DepartureDate:  w.DepartureDate,
		DepartureTime:  w.DepartureTime,
		ArrivalDate:    w.ArrivalDate,
		ArrivalTime:    w.ArrivalTime,
		ReturningToken: w.ReturningToken,
		Segments:       make([]Segment, 0, len(w.Segments)),
	}
	for _, a := range w.Airline {
		o.Airlines = append(o.Airlines, a.AirlineName)
	}
	for i, s := range w.Segments {
		if s.Airline == nil {
			return Offer{}, fmt.Errorf("offer: segment %d: missing airline", i)
		}
		if s.FlightID == nil {
			return Offer{}, fmt.Errorf("offer: segment %d: missing flightId", i)
		}
		o.Segments = append(o.Segments, Segment{
			AirlineCode:        s.Airline.AirlineCode,
			AirlineName:        s.Airline.AirlineName,
			FlightNumber:       string(s.Airline.FlightNumber),
			FlightID:           string(*s.FlightID),
			ArrivalAirportCode: s.ArrivalAirportCode,
			ArrivalTime:        s.ArrivalTime,
		})
	}
	return o, nil
}

// ParseResults decodes the "data" object of a search response. Offers that
// fail ParseOffer are left out and reported through the returned error,
// the valid ones are kept in API order. An empty or null payload is an
// empty result.
func ParseResults(data json.RawMessage) (Results, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Results{}, nil
	}
	// the API answers with an empty array instead of an object when it has nothing
	if data[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err == nil && len(arr) == 0 {
			return Results{}, nil
		}
		return Results{}, errors.New("decode results: unexpected array payload")
	}

	var payload struct {
		TopFlights   []json.RawMessage `json:"topFlights"`
		OtherFlights []json.RawMessage `json:"otherFlights"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Results{}, fmt.Errorf("decode results: %w", err)
	}

	var errs []error
	parse := func(list string, raws []json.RawMessage) []Offer {
		out := make([]Offer, 0, len(raws))
		for i, raw := range raws {
			o, err := ParseOffer(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", list, i, err))
				continue
			}
			out = append(out, o)
		}
		return out
	}

	res := Results{
		TopFlights:   parse("topFlights", payload.TopFlights),
		OtherFlights: parse("otherFlights", payload.OtherFlights),
	}
	return res, errors.Join(errs...)
}
