package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
	"github.com/you/go-flightgrid/internal/storage"
	"go.uber.org/zap"
)

// SearchRequest is the JSON body of POST /searches.
type SearchRequest struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	DepartStart    string  `json:"depart_start"` // YYYY-MM-DD
	DepartEnd      string  `json:"depart_end"`   // YYYY-MM-DD
	MinDays        int     `json:"min_days"`
	MaxDays        int     `json:"max_days"`
	MaxFlightHours float64 `json:"max_flight_hours"`
	MaxPrice       int     `json:"max_price"`
	Adults         int     `json:"adults"`
	MaxFlights     int     `json:"max_flights"`
	RoundTrip      bool    `json:"round_trip"`
}

func (q SearchRequest) Constraints() (service.Constraints, error) {
	start, err := service.ParseDate(q.DepartStart)
	if err != nil {
		return service.Constraints{}, err
	}
	end, err := service.ParseDate(q.DepartEnd)
	if err != nil {
		return service.Constraints{}, err
	}
	c := service.Constraints{
		DepartureID:       strings.ToUpper(strings.TrimSpace(q.From)),
		ArrivalID:         strings.ToUpper(strings.TrimSpace(q.To)),
		DepartureStart:    start,
		DepartureEnd:      end,
		MinDurationDays:   q.MinDays,
		MaxDurationDays:   q.MaxDays,
		MaxFlightDuration: time.Duration(q.MaxFlightHours * float64(time.Hour)),
		MaxPrice:          q.MaxPrice,
		Adults:            q.Adults,
		MaxFlights:        q.MaxFlights,
		RoundTrip:         q.RoundTrip,
	}
	if c.Adults == 0 {
		c.Adults = 1
	}
	return c, c.Validate()
}

type runResponse struct {
	Run  service.RunInfo `json:"run"`
	Sort string          `json:"sort"`
	Rows []results.Row   `json:"rows"`
}

type Handler struct {
	runner *service.Runner
	log    *zap.Logger
}

func NewHandler(runner *service.Runner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{runner: runner, log: log.Named("http")}
}

func (h *Handler) StartSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	c, err := req.Constraints()
	if err != nil {
		h.writeError(w, err)
		return
	}
	run, err := h.runner.Start(c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/searches/"+run.Info().ID)
	writeJSON(w, http.StatusAccepted, run.Info())
}

func (h *Handler) ListSearches(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runner.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []service.RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	key, err := results.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	info, err := h.runner.Info(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.runner.Rows(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []results.Row{}
	}
	results.SortRows(rows, key)
	writeJSON(w, http.StatusOK, runResponse{Run: info, Sort: string(key), Rows: rows})
}

func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	rows, err := h.runner.Rows(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	points := results.CheapestByDeparture(rows)
	if points == nil {
		points = []results.DayPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := h.runner.Info(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.runner.Rows(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.FileName(info.Constraints)))
	if err := storage.WriteCSV(w, rows); err != nil {
		h.log.Warn("csv export failed", zap.String("run_id", id), zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidConstraints):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrSearchRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
