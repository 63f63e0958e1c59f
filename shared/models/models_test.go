package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegimeJSONRoundTrip(t *testing.T) {
	for _, r := range []Regime{RegimeAccumulation, RegimeMarkup, RegimeDistribution, RegimeMarkdown} {
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var back Regime
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, r, back)
	}

	var r Regime
	assert.Error(t, json.Unmarshal([]byte(`"sideways"`), &r))
}

func TestManualControlWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ctrl := ManualControl{Direction: DirectionUp, StartTime: start, DurationSeconds: 60}

	assert.True(t, ctrl.ActiveAt(start))
	assert.True(t, ctrl.ActiveAt(start.Add(59*time.Second)))
	assert.False(t, ctrl.ActiveAt(start.Add(60*time.Second)), "window is half-open")
	assert.False(t, ctrl.ActiveAt(start.Add(-time.Second)))
}

func TestHistoryResponseNoData(t *testing.T) {
	resp := NewHistoryResponse(nil)
	assert.Equal(t, HistoryStatusNoData, resp.Status)
	assert.NotNil(t, resp.Times)
	assert.Empty(t, resp.Times)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"s":"no_data"`)
	assert.Contains(t, string(data), `"t":[]`)
}

func TestHistoryResponseTimestampsInSeconds(t *testing.T) {
	resp := NewHistoryResponse([]Candle{{Timestamp: 1704103200000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}})
	assert.Equal(t, HistoryStatusOK, resp.Status)
	require.Len(t, resp.Times, 1)
	assert.Equal(t, int64(1704103200), resp.Times[0])
}
