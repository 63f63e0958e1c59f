// Package server exposes the simulator over HTTP and websocket: system
// status, historical candles in the chart wire format, manual-control
// creation, and a live stream.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/shared/models"
	"github.com/syntick/syntick/simulator/control"
	"github.com/syntick/syntick/simulator/engine"
)

// HistoryStore is the server's read/append view of durable storage.
type HistoryStore interface {
	History(ctx context.Context, symbol, resolution string, fromMs, toMs int64, limit int) ([]models.Candle, error)
	SaveControl(ctx context.Context, ctrl models.ManualControl) error
}

// streamMessage is the envelope sent to websocket subscribers.
type streamMessage struct {
	Type string      `json:"type"` // tick | candle | event
	Data interface{} `json:"data"`
}

// controlRequest is the manual-control creation payload.
type controlRequest struct {
	Direction       models.Direction `json:"direction"`
	Speed           float64          `json:"speed"`
	Intensity       float64          `json:"intensity"`
	DurationSeconds int              `json:"duration_seconds"`
}

// Server wires the engine's publication boundary to HTTP and websocket
// consumers.
type Server struct {
	cfg      *config.SimulatorConfig
	clock    clock.Clock
	eng      *engine.Engine
	store    HistoryStore
	controls *control.Registry
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a server and subscribes it to the engine's stream.
func New(cfg *config.SimulatorConfig, clk clock.Clock, eng *engine.Engine, store HistoryStore, controls *control.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		clock:    clk,
		eng:      eng,
		store:    store,
		controls: controls,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	eng.OnTick(func(snap models.LiveSnapshot) { s.broadcast("tick", snap) })
	eng.OnCandle(func(c models.Candle) { s.broadcast("candle", c) })
	eng.OnEvent(func(ev models.Event) { s.broadcast("event", ev) })

	return s
}

// Hub exposes the websocket hub, mainly for shutdown.
func (s *Server) Hub() *Hub { return s.hub }

// Routes returns the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) broadcast(kind string, data interface{}) {
	msg, err := json.Marshal(streamMessage{Type: kind, Data: data})
	if err != nil {
		log.Printf("marshal %s message: %v", kind, err)
		return
	}
	s.hub.Broadcast(msg)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Status())
}

// handleHistory serves candles as index-aligned arrays. An empty range is
// status "no_data", not an error.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		symbol = s.cfg.Symbol
	}
	resolution := q.Get("resolution")
	if resolution == "" {
		resolution = s.cfg.Resolution
	}
	from, err := parseInt64(q.Get("from"), 0)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := parseInt64(q.Get("to"), s.clock.Now().UnixMilli())
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	limit, err := parseInt64(q.Get("limit"), 0)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	candles, err := s.store.History(r.Context(), symbol, resolution, from, to, int(limit))
	if err != nil {
		log.Printf("history query failed: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.NewHistoryResponse(candles))
}

// handleControl validates and registers a manual override. Invalid input is
// rejected here and never reaches the engine.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ctrl, err := s.controls.Create(req.Direction, req.Speed, req.Intensity, req.DurationSeconds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Persisting control history is best effort.
	if err := s.store.SaveControl(r.Context(), ctrl); err != nil {
		log.Printf("⚠️ manual control persistence failed: %v", err)
	}

	log.Printf("🎛️ manual control created: %s speed=%v intensity=%v duration=%ds",
		ctrl.Direction, ctrl.Speed, ctrl.Intensity, ctrl.DurationSeconds)
	writeJSON(w, http.StatusCreated, ctrl)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	s.hub.Serve(conn)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func parseInt64(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
