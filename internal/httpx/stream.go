package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamMessage is one frame of a row stream.
type StreamMessage struct {
	Type string           `json:"type"` // "row" or "done"
	Row  *results.Row     `json:"row,omitempty"`
	Run  *service.RunInfo `json:"run,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// follow replays the rows of a run and then emits every appended row until
// the run finishes, the client goes away or emit fails. A finished or
// stored run is replayed and closed immediately.
func (h *Handler) follow(ctx context.Context, id string, emit func(StreamMessage) error, tick <-chan time.Time, ping func() error) error {
	run, live := h.runner.Get(id)
	if !live {
		info, err := h.runner.Info(ctx, id)
		if err != nil {
			return err
		}
		rows, err := h.runner.Rows(ctx, id)
		if err != nil {
			return err
		}
		for i := range rows {
			if err := emit(StreamMessage{Type: "row", Row: &rows[i]}); err != nil {
				return nil
			}
		}
		_ = emit(StreamMessage{Type: "done", Run: &info})
		return nil
	}

	existing, updates, cancel := run.Table.Subscribe()
	defer cancel()
	for i := range existing {
		if err := emit(StreamMessage{Type: "row", Row: &existing[i]}); err != nil {
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if ping != nil && ping() != nil {
				return nil
			}
		case row, ok := <-updates:
			if !ok {
				// table closed, or we fell behind and were dropped
				select {
				case <-run.Done():
				case <-ctx.Done():
					return nil
				}
				info := run.Info()
				_ = emit(StreamMessage{Type: "done", Run: &info})
				return nil
			}
			if err := emit(StreamMessage{Type: "row", Row: &row}); err != nil {
				return nil
			}
		}
	}
}

func (h *Handler) StreamWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.runner.Info(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// reader: notices client close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	emit := func(m StreamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	}
	if err := h.follow(ctx, id, emit, ticker.C, ping); err != nil {
		h.log.Warn("websocket stream failed", zap.String("run_id", id), zap.Error(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.runner.Info(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	emit := func(m StreamMessage) error {
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ping := func() error {
		if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := h.follow(r.Context(), id, emit, ticker.C, ping); err != nil {
		h.log.Warn("event stream failed", zap.String("run_id", id), zap.Error(err))
	}
}
