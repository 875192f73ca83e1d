package httpx

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/you/go-flightgrid/internal/auth"
	"github.com/you/go-flightgrid/internal/config"
	"github.com/you/go-flightgrid/internal/providers"
	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
)

// stubSearcher answers every outgoing search with two offers and every
// return search with one. When gate is set, outgoing searches wait on it.
type stubSearcher struct {
	gate chan struct{}
}

func (s stubSearcher) Name() string { return "stub" }

func (s stubSearcher) SearchOutgoing(ctx context.Context, q providers.OutgoingQuery) (providers.Results, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return providers.Results{}, ctx.Err()
		}
	}
	return providers.Results{TopFlights: []providers.Offer{
		stubOffer(700, "t1", q.DepartureDate, "TK1"),
		stubOffer(650, "t2", q.DepartureDate, "TK2"),
	}}, nil
}

func (s stubSearcher) SearchReturning(ctx context.Context, q providers.ReturnQuery) (providers.Results, error) {
	price := 400.0
	if q.Token == "t2" {
		price = 300
	}
	return providers.Results{TopFlights: []providers.Offer{stubOffer(price, "", q.ReturnDate, "TK9")}}, nil
}

func stubOffer(price float64, token, date, flight string) providers.Offer {
	return providers.Offer{
		Price: price, DurationMin: 660, DepartureDate: date, DepartureTime: "10:00",
		ReturningToken: token,
		Segments:       []providers.Segment{{AirlineCode: "TK", AirlineName: "Turkish Airlines", FlightNumber: flight[2:], FlightID: flight}},
	}
}

type testEnv struct {
	srv    *httptest.Server
	runner *service.Runner
	token  string
}

func newTestEnv(t *testing.T, searcher providers.FlightSearcher) *testEnv {
	t.Helper()
	cfg := &config.Config{JWTSecret: "s3cret", JWTUser: "demo", JWTPassword: "demo123"}
	ctx, cancel := context.WithCancel(context.Background())
	runner := service.NewRunner(ctx, service.NewSearchService(searcher, nil), nil, nil, nil)
	srv := httptest.NewServer(NewRouter(runner, cfg, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		runner.Wait()
	})
	tok, err := auth.IssueToken(cfg, "demo", time.Now())
	require.NoError(t, err)
	return &testEnv{srv: srv, runner: runner, token: tok}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const searchBody = `{"from":"fra","to":"bkk","depart_start":"2026-01-05","depart_end":"2026-01-07",
	"min_days":1,"max_days":2,"max_flight_hours":16,"max_price":850,"adults":1,"max_flights":3,"round_trip":true}`

func TestSearchLifecycle(t *testing.T) {
	env := newTestEnv(t, stubSearcher{})

	resp := env.do(t, http.MethodPost, "/searches", searchBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var info service.RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.NotEmpty(t, info.ID)
	require.Equal(t, "FRA", info.Constraints.DepartureID)
	require.Equal(t, "/searches/"+info.ID, resp.Header.Get("Location"))
	env.runner.Wait()

	resp = env.do(t, http.MethodGet, "/searches/"+info.ID+"?sort=price", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got runResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, service.StatusDone, got.Run.Status)
	require.Equal(t, "price", got.Sort)
	require.Len(t, got.Rows, 2)
	require.Equal(t, 300.0, got.Rows[0].Price)
	require.Equal(t, 400.0, got.Rows[1].Price)

	resp = env.do(t, http.MethodGet, "/searches/"+info.ID+"/calendar", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var points []results.DayPoint
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
	require.Len(t, points, 1)
	require.Equal(t, "2026-01-06", points[0].Date)
	require.Equal(t, 300.0, points[0].CheapestPrice)

	resp = env.do(t, http.MethodGet, "/searches/"+info.ID+"/export.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "roundtrip_flights_FRA_BKK.csv")
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, results.Header, records[0])

	resp = env.do(t, http.MethodGet, "/searches", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []service.RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
}

func TestSearchErrors(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, stubSearcher{gate: gate})
	defer close(gate)

	resp := env.do(t, http.MethodPost, "/searches", `{`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/searches", strings.Replace(searchBody, `"max_price":850`, `"max_price":0`, 1))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/searches", strings.Replace(searchBody, "2026-01-05", "05.01.2026", 1))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/searches", searchBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/searches", searchBody)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/searches/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/searches/unknown?sort=airline", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t, stubSearcher{})
	resp, err := http.Post(env.srv.URL+"/searches", "application/json", bytes.NewBufferString(searchBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamWS(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, stubSearcher{gate: gate})

	resp := env.do(t, http.MethodPost, "/searches", searchBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var info service.RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/searches/" + info.ID + "?token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(gate)

	var msgs []StreamMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var m StreamMessage
		require.NoError(t, conn.ReadJSON(&m))
		msgs = append(msgs, m)
		if m.Type == "done" {
			break
		}
	}
	require.Len(t, msgs, 3)
	require.Equal(t, "row", msgs[0].Type)
	require.Equal(t, 400.0, msgs[0].Row.Price)
	require.Equal(t, 300.0, msgs[1].Row.Price)
	require.Equal(t, service.StatusDone, msgs[2].Run.Status)
}

func TestStreamSSEReplaysFinishedRun(t *testing.T) {
	env := newTestEnv(t, stubSearcher{})
	resp := env.do(t, http.MethodPost, "/searches", searchBody)
	var info service.RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	env.runner.Wait()

	resp = env.do(t, http.MethodGet, "/sse/searches/"+info.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	body := buf.String()
	require.Equal(t, 2, strings.Count(body, "event: row\n"))
	require.Equal(t, 1, strings.Count(body, "event: done\n"))
}
