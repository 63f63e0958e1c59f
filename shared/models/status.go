package models

// SystemStatus is the serialized view of the running engine.
type SystemStatus struct {
	Mode           Mode           `json:"mode"`
	Regime         Regime         `json:"regime"`
	IsRunning      bool           `json:"is_running"`
	LastCandleTime int64          `json:"last_candle_time"` // ms epoch, 0 if none yet
	CurrentPrice   float64        `json:"current_price"`
	TotalCandles   int64          `json:"total_candles_this_session"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
	ActiveControl  *ManualControl `json:"active_manual_control,omitempty"`
}

// EventType classifies state-change events published by the engine.
type EventType string

// Engine event types
const (
	EventRegimeChange EventType = "regime_change"
	EventModeChange   EventType = "mode_change"
	EventMarketShock  EventType = "market_shock"
)

// Event is a state-change notification handed to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // ms epoch
	Regime    Regime    `json:"regime,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
