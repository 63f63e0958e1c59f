package models

// History response statuses, matching the charting consumers' wire format.
const (
	HistoryStatusOK     = "ok"
	HistoryStatusNoData = "no_data"
)

// HistoryResponse is the index-aligned array form downstream chart widgets
// expect. Timestamps are in seconds, not milliseconds.
type HistoryResponse struct {
	Status  string    `json:"s"`
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
}

// NewHistoryResponse converts a candle slice into the wire shape. An empty
// slice yields status "no_data" with empty (non-nil) arrays.
func NewHistoryResponse(candles []Candle) HistoryResponse {
	resp := HistoryResponse{
		Status:  HistoryStatusOK,
		Times:   make([]int64, 0, len(candles)),
		Opens:   make([]float64, 0, len(candles)),
		Highs:   make([]float64, 0, len(candles)),
		Lows:    make([]float64, 0, len(candles)),
		Closes:  make([]float64, 0, len(candles)),
		Volumes: make([]float64, 0, len(candles)),
	}
	if len(candles) == 0 {
		resp.Status = HistoryStatusNoData
		return resp
	}
	for _, c := range candles {
		resp.Times = append(resp.Times, c.Timestamp/1000)
		resp.Opens = append(resp.Opens, c.Open)
		resp.Highs = append(resp.Highs, c.High)
		resp.Lows = append(resp.Lows, c.Low)
		resp.Closes = append(resp.Closes, c.Close)
		resp.Volumes = append(resp.Volumes, c.Volume)
	}
	return resp
}
