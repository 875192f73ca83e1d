package results

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/you/go-flightgrid/internal/providers"
)

// Row is one outgoing offer paired with one return offer, or with none.
// Return-side fields are strings and stay empty for a partial row, except
// DepartureReturn which then carries the searched return date.
type Row struct {
	Price float64 `json:"price"` // return price when paired, else outgoing price

	OutgoingPrice         float64 `json:"outgoing_price"`
	DepartureDateOutgoing string  `json:"departure_date_outgoing"`
	DepartureTimeOutgoing string  `json:"departure_time_outgoing"`
	AirlineOutgoing       string  `json:"airline_outgoing"`
	FlightIDOutgoing      string  `json:"flight_id_outgoing"`
	FlightNoOutgoing      string  `json:"flight_no_outgoing"`
	DurationMinOutgoing   int     `json:"duration_min_outgoing"`
	DurationOutgoing      string  `json:"duration_outgoing"`

	ReturnPrice        string `json:"return_price"`
	DurationMinReturn  string `json:"duration_min_return"`
	DurationReturn     string `json:"duration_return"`
	Stops              string `json:"stops"`
	DepartureReturn    string `json:"departure_return"`
	ArrivalReturn      string `json:"arrival_return"`
	FlightID           string `json:"flight_id"`
	FlightNo           string `json:"flight_no"`
	Airline            string `json:"airline"`
	ArrivalAirportCode string `json:"arrival_airport_code"`
	ArrivalTime        string `json:"arrival_time"`
}

// Partial reports whether the row has no return leg.
func (r Row) Partial() bool {
	return r.ReturnPrice == ""
}

// Flatten builds the row for an outgoing offer and an optional return
// offer. Segment fields of the return offer are joined with newlines in
// flight order.
func Flatten(ret *providers.Offer, out providers.Offer, returnDateLabel string) Row {
	var first providers.Segment
	if len(out.Segments) > 0 {
		first = out.Segments[0]
	}
	row := Row{
		Price:                 out.Price,
		OutgoingPrice:         out.Price,
		DepartureDateOutgoing: out.DepartureDate,
		DepartureTimeOutgoing: out.DepartureTime,
		AirlineOutgoing:       out.Airline(),
		FlightIDOutgoing:      first.FlightID,
		FlightNoOutgoing:      first.Code(),
		DurationMinOutgoing:   out.DurationMin,
		DurationOutgoing:      FormatMinutes(out.DurationMin),
		DepartureReturn:       returnDateLabel,
	}
	if ret == nil {
		return row
	}

	n := len(ret.Segments)
	airports := make([]string, 0, n)
	arrivals := make([]string, 0, n)
	codes := make([]string, 0, n)
	ids := make([]string, 0, n)
	airlines := make([]string, 0, n)
	for _, s := range ret.Segments {
		airports = append(airports, s.ArrivalAirportCode)
		arrivals = append(arrivals, s.ArrivalTime)
		codes = append(codes, s.Code())
		ids = append(ids, s.FlightID)
		airlines = append(airlines, s.AirlineName)
	}

	row.Price = ret.Price
	row.ReturnPrice = formatPrice(ret.Price)
	row.DurationMinReturn = strconv.Itoa(ret.DurationMin)
	row.DurationReturn = FormatMinutes(ret.DurationMin)
	row.Stops = strconv.Itoa(ret.Stops)
	row.DepartureReturn = strings.TrimSpace(ret.DepartureDate + " " + ret.DepartureTime)
	row.ArrivalReturn = strings.TrimSpace(ret.ArrivalDate + " " + ret.ArrivalTime)
	row.FlightID = strings.Join(ids, "\n")
	row.FlightNo = strings.Join(codes, "\n")
	row.Airline = strings.Join(airlines, "\n")
	row.ArrivalAirportCode = strings.Join(airports, "\n")
	row.ArrivalTime = strings.Join(arrivals, "\n")
	return row
}

// FormatMinutes renders 1035 as "17h 15m".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Header is the column header of exported tables.
var Header = []string{
	"Price",
	"Price Outgoing",
	"Departure Date Outgoing",
	"Departure Time Outgoing",
	"Airline Outgoing",
	"Flight ID Outgoing",
	"Flight No Outgoing",
	"Duration Mins. Outgoing",
	"Duration Outgoing",
	"Price Return",
	"Duration Mins. Return",
	"Duration Return",
	"Stops",
	"Departure Time Return",
	"Arrival Time Return",
	"Flight ID",
	"Flight No",
	"Airline",
	"Arrival Airport Code",
	"Arrival Time",
}

// Record returns the row's cells in Header order.
func (r Row) Record() []string {
	return []string{
		formatPrice(r.Price),
		formatPrice(r.OutgoingPrice),
		r.DepartureDateOutgoing,
		r.DepartureTimeOutgoing,
		r.AirlineOutgoing,
		r.FlightIDOutgoing,
		r.FlightNoOutgoing,
		strconv.Itoa(r.DurationMinOutgoing),
		r.DurationOutgoing,
		r.ReturnPrice,
		r.DurationMinReturn,
		r.DurationReturn,
		r.Stops,
		r.DepartureReturn,
		r.ArrivalReturn,
		r.FlightID,
		r.FlightNo,
		r.Airline,
		r.ArrivalAirportCode,
		r.ArrivalTime,
	}
}
