package results

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/you/go-flightgrid/internal/providers"
)

func outgoingOffer() providers.Offer {
	return providers.Offer{
		Price:          512,
		DurationMin:    1035,
		Stops:          1,
		DepartureDate:  "2026-01-06",
		DepartureTime:  "10:35",
		Airlines:       []string{"Turkish Airlines"},
		ReturningToken: "tok-1",
		Segments: []providers.Segment{
			{AirlineCode: "TK", AirlineName: "Turkish Airlines", FlightNumber: "1724", FlightID: "7788", ArrivalAirportCode: "IST", ArrivalTime: "14:45"},
			{AirlineCode: "TK", AirlineName: "Turkish Airlines", FlightNumber: "58", FlightID: "7789", ArrivalAirportCode: "BKK", ArrivalTime: "06:50"},
		},
	}
}

func returnOffer() providers.Offer {
	return providers.Offer{
		Price:         798,
		DurationMin:   905,
		Stops:         1,
		DepartureDate: "2026-01-21",
		DepartureTime: "23:10",
		ArrivalDate:   "2026-01-22",
		ArrivalTime:   "11:15",
		Segments: []providers.Segment{
			{AirlineCode: "QR", AirlineName: "Qatar Airways", FlightNumber: "833", FlightID: "9001", ArrivalAirportCode: "DOH", ArrivalTime: "03:05"},
			{AirlineCode: "QR", AirlineName: "Qatar Airways", FlightNumber: "79", FlightID: "9002", ArrivalAirportCode: "BER", ArrivalTime: "11:15"},
		},
	}
}

func TestFlattenPartialRow(t *testing.T) {
	out := outgoingOffer()
	row := Flatten(nil, out, "2026-01-21")

	require.Equal(t, 512.0, row.Price)
	require.Equal(t, 512.0, row.OutgoingPrice)
	require.Equal(t, "Turkish Airlines", row.AirlineOutgoing)
	require.Equal(t, "7788", row.FlightIDOutgoing)
	require.Equal(t, "TK1724", row.FlightNoOutgoing)
	require.Equal(t, "2026-01-06", row.DepartureDateOutgoing)
	require.Equal(t, "10:35", row.DepartureTimeOutgoing)
	require.Equal(t, 1035, row.DurationMinOutgoing)
	require.Equal(t, "17h 15m", row.DurationOutgoing)
	require.Equal(t, "2026-01-21", row.DepartureReturn)
	require.True(t, row.Partial())

	for name, v := range map[string]string{
		"ReturnPrice":        row.ReturnPrice,
		"DurationMinReturn":  row.DurationMinReturn,
		"DurationReturn":     row.DurationReturn,
		"Stops":              row.Stops,
		"ArrivalReturn":      row.ArrivalReturn,
		"FlightID":           row.FlightID,
		"FlightNo":           row.FlightNo,
		"Airline":            row.Airline,
		"ArrivalAirportCode": row.ArrivalAirportCode,
		"ArrivalTime":        row.ArrivalTime,
	} {
		require.Empty(t, v, name)
	}
}

func TestFlattenTwoSegmentReturn(t *testing.T) {
	ret := returnOffer()
	row := Flatten(&ret, outgoingOffer(), "2026-01-21")

	require.False(t, row.Partial())
	require.Equal(t, 798.0, row.Price)
	require.Equal(t, 512.0, row.OutgoingPrice)
	require.Equal(t, "798", row.ReturnPrice)
	require.Equal(t, "905", row.DurationMinReturn)
	require.Equal(t, "15h 5m", row.DurationReturn)
	require.Equal(t, "1", row.Stops)
	require.Equal(t, "2026-01-21 23:10", row.DepartureReturn)
	require.Equal(t, "2026-01-22 11:15", row.ArrivalReturn)

	require.Equal(t, "DOH\nBER", row.ArrivalAirportCode)
	require.Equal(t, "03:05\n11:15", row.ArrivalTime)
	require.Equal(t, "QR833\nQR79", row.FlightNo)
	require.Equal(t, "9001\n9002", row.FlightID)
	require.Equal(t, "Qatar Airways\nQatar Airways", row.Airline)
	for _, field := range []string{row.ArrivalAirportCode, row.ArrivalTime, row.FlightNo, row.FlightID, row.Airline} {
		require.Len(t, strings.Split(field, "\n"), 2)
	}
}

func TestRecordMatchesHeader(t *testing.T) {
	ret := returnOffer()
	rec := Flatten(&ret, outgoingOffer(), "2026-01-21").Record()
	require.Len(t, rec, len(Header))
	require.Equal(t, "798", rec[0])
	require.Equal(t, "512", rec[1])

	partial := Flatten(nil, outgoingOffer(), "2026-01-21").Record()
	require.Equal(t, "", partial[9])
	require.Equal(t, "2026-01-21", partial[13])
}

func TestFormatMinutes(t *testing.T) {
	if got := FormatMinutes(0); got != "0h 0m" {
		t.Fatalf("FormatMinutes(0) = %q", got)
	}
	if got := FormatMinutes(61); got != "1h 1m" {
		t.Fatalf("FormatMinutes(61) = %q", got)
	}
}
