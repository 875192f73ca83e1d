package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const offerJSON = `{
	"price": 581,
	"duration": 1035,
	"stops": 1,
	"departureDate": "2026-01-06",
	"departureTime": "10:35",
	"arrivalDate": "2026-01-07",
	"arrivalTime": "06:50",
	"returningToken": "tok-1",
	"airline": [{"airlineName": "Turkish Airlines"}],
	"segments": [
		{"flightId": 7788, "arrivalAirportCode": "IST", "arrivalTime": "14:45",
		 "airline": {"airlineCode": "TK", "flightNumber": "1724", "airlineName": "Turkish Airlines"}},
		{"flightId": "TK58", "arrivalAirportCode": "BKK", "arrivalTime": "06:50",
		 "airline": {"airlineCode": "TK", "flightNumber": 58, "airlineName": "Turkish Airlines"}}
	]
}`

func TestParseOffer(t *testing.T) {
	o, err := ParseOffer(json.RawMessage(offerJSON))
	require.NoError(t, err)
	require.Equal(t, 581.0, o.Price)
	require.Equal(t, 1035, o.DurationMin)
	require.Equal(t, 1, o.Stops)
	require.Equal(t, "tok-1", o.ReturningToken)
	require.Equal(t, "Turkish Airlines", o.Airline())
	require.Len(t, o.Segments, 2)
	require.Equal(t, "7788", o.Segments[0].FlightID)
	require.Equal(t, "TK1724", o.Segments[0].Code())
	require.Equal(t, "TK58", o.Segments[1].Code())
	require.Equal(t, "BKK", o.Segments[1].ArrivalAirportCode)
}

func TestParseOfferMissingFields(t *testing.T) {
	cases := map[string]string{
		"missing price":         `{"duration": 60, "departureDate": "2026-01-06", "departureTime": "10:00", "segments": [{"flightId": 1, "airline": {}}]}`,
		"missing duration":      `{"price": 10, "departureDate": "2026-01-06", "departureTime": "10:00", "segments": [{"flightId": 1, "airline": {}}]}`,
		"missing departureDate": `{"price": 10, "duration": 60, "departureTime": "10:00", "segments": [{"flightId": 1, "airline": {}}]}`,
		"missing segments":      `{"price": 10, "duration": 60, "departureDate": "2026-01-06", "departureTime": "10:00"}`,
		"missing flightId":      `{"price": 10, "duration": 60, "departureDate": "2026-01-06", "departureTime": "10:00", "segments": [{"airline": {}}]}`,
	}
	for want, raw := range cases {
		_, err := ParseOffer(json.RawMessage(raw))
		require.ErrorContains(t, err, want)
	}
}

func TestParseResultsKeepsValidOffersInOrder(t *testing.T) {
	raw := `{"topFlights": [` + offerJSON + `, {"price": 1}], "otherFlights": [` + offerJSON + `]}`

	res, err := ParseResults(json.RawMessage(raw))
	require.Error(t, err)
	require.ErrorContains(t, err, "topFlights[1]")
	require.Len(t, res.TopFlights, 1)
	require.Len(t, res.OtherFlights, 1)
	require.Len(t, res.All(), 2)
}

func TestParseResultsEmptyPayloads(t *testing.T) {
	for _, raw := range []string{"", "null", "[]", "{}", `{"topFlights": null}`} {
		res, err := ParseResults(json.RawMessage(raw))
		require.NoError(t, err, raw)
		require.Zero(t, res.Len(), raw)
	}

	_, err := ParseResults(json.RawMessage(`[1,2]`))
	require.Error(t, err)
}
