package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/shared/models"
	"github.com/syntick/syntick/simulator/market"
	"github.com/syntick/syntick/simulator/storage"
)

var testBase = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// fakeControls is a test stand-in for the manual control registry.
type fakeControls struct {
	mu   sync.Mutex
	ctrl *models.ManualControl
}

func (f *fakeControls) Active() *models.ManualControl {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctrl
}

func (f *fakeControls) set(c *models.ManualControl) {
	f.mu.Lock()
	f.ctrl = c
	f.mu.Unlock()
}

// collector gathers everything the engine publishes.
type collector struct {
	mu      sync.Mutex
	ticks   []models.LiveSnapshot
	candles []models.Candle
	events  []models.Event
}

func (c *collector) attach(e *Engine) {
	e.OnTick(func(s models.LiveSnapshot) {
		c.mu.Lock()
		c.ticks = append(c.ticks, s)
		c.mu.Unlock()
	})
	e.OnCandle(func(cd models.Candle) {
		c.mu.Lock()
		c.candles = append(c.candles, cd)
		c.mu.Unlock()
	})
	e.OnEvent(func(ev models.Event) {
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
}

func (c *collector) candleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candles)
}

func testEngineConfig() *config.SimulatorConfig {
	return &config.SimulatorConfig{
		Symbol:       "SYN-USDT",
		Resolution:   "5s",
		Interval:     5 * time.Second,
		TickInterval: 1 * time.Second,
		BasePrice:    10.0,
		Volatility:   0.02,
		VolumeBase:   1000,
	}
}

func newTestEngine(seed int64, controls ControlSource) (*Engine, *clock.Mock, *storage.MemoryStore, *collector) {
	cfg := testEngineConfig()
	mock := clock.NewMock()
	mock.Set(testBase)
	gen := market.NewGenerator(market.Config{
		BasePrice:  cfg.BasePrice,
		Volatility: cfg.Volatility,
		VolumeBase: cfg.VolumeBase,
	}, seed)
	store := storage.NewMemoryStore()
	eng := New(cfg, mock, gen, controls, store, storage.NoopCache{})
	col := &collector{}
	col.attach(eng)
	return eng, mock, store, col
}

// advance moves the mock clock tick by tick, giving the loop goroutine time
// to process each firing.
func advance(mock *clock.Mock, steps int, step time.Duration) {
	for i := 0; i < steps; i++ {
		mock.Add(step)
		time.Sleep(10 * time.Millisecond)
	}
}

// Three intervals of continuous running produce exactly three aligned,
// contiguous, well-formed candles.
func TestCandleAlignmentAndInvariants(t *testing.T) {
	eng, mock, store, col := newTestEngine(42, &fakeControls{})
	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	advance(mock, 15, time.Second)
	eng.Stop()

	require.Equal(t, 3, col.candleCount(), "one candle per interval")

	intervalMs := int64(5000)
	for i, c := range col.candles {
		assert.Zero(t, c.Timestamp%intervalMs, "candle %d timestamp not interval-aligned", i)
		assert.LessOrEqual(t, c.Low, c.Open, "candle %d", i)
		assert.LessOrEqual(t, c.Low, c.Close, "candle %d", i)
		assert.GreaterOrEqual(t, c.High, c.Open, "candle %d", i)
		assert.GreaterOrEqual(t, c.High, c.Close, "candle %d", i)
		assert.Greater(t, c.Close, 0.0, "candle %d", i)
		assert.Greater(t, c.Volume, 0.0, "candle %d", i)
		assert.Equal(t, models.ModeAuto, c.Mode, "candle %d", i)
		assert.Equal(t, "SYN-USDT", c.Symbol)

		if i > 0 {
			assert.Equal(t, intervalMs, c.Timestamp-col.candles[i-1].Timestamp,
				"consecutive candles must be exactly one interval apart")
			assert.Equal(t, col.candles[i-1].Close, c.Open,
				"candle %d must open at the previous close", i)
		}
	}
	assert.Equal(t, testBase.UnixMilli(), col.candles[0].Timestamp)

	// Finalized candles were persisted.
	stored, err := store.History(context.Background(), "SYN-USDT", "5s", 0, time.Now().UnixMilli(), 100)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

// Live ticks animate the open candle and count down to the boundary.
func TestLiveTickSnapshots(t *testing.T) {
	eng, mock, _, col := newTestEngine(7, &fakeControls{})
	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	advance(mock, 4, time.Second)
	eng.Stop()

	col.mu.Lock()
	defer col.mu.Unlock()
	require.NotEmpty(t, col.ticks)
	for i, s := range col.ticks {
		assert.Equal(t, testBase.UnixMilli(), s.Timestamp, "tick %d belongs to the first interval", i)
		assert.LessOrEqual(t, s.Low, s.Close, "tick %d", i)
		assert.GreaterOrEqual(t, s.High, s.Close, "tick %d", i)
		assert.GreaterOrEqual(t, s.TimeRemaining, 0.0)
		assert.Less(t, s.TimeRemaining, 5.0)
		if i > 0 {
			assert.GreaterOrEqual(t, col.ticks[i-1].TimeRemaining, s.TimeRemaining,
				"remaining time must not grow within an interval")
			assert.GreaterOrEqual(t, s.Volume, col.ticks[i-1].Volume,
				"volume accumulates within an interval")
		}
	}
}

// A candle generated entirely under an up control closes well above its
// open and is marked manual.
func TestManualControlCandle(t *testing.T) {
	controls := &fakeControls{}
	controls.set(&models.ManualControl{
		ID:              "test",
		Direction:       models.DirectionUp,
		Speed:           0.02,
		Intensity:       1.5,
		StartTime:       testBase,
		DurationSeconds: 60,
	})

	eng, mock, _, col := newTestEngine(13, controls)
	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	advance(mock, 5, time.Second)
	eng.Stop()

	require.GreaterOrEqual(t, col.candleCount(), 1)
	c := col.candles[0]
	assert.Equal(t, models.ModeManual, c.Mode)
	assert.Greater(t, c.Close, c.Open)
	// 2% × 1.5 per tick, governor-capped at 2.5%: even half the nominal
	// per-step push compounds past this over one interval.
	assert.GreaterOrEqual(t, c.Close, c.Open*(1+0.02*1.5*0.5))

	// Entering manual mode published a mode-change event.
	col.mu.Lock()
	defer col.mu.Unlock()
	var sawModeChange bool
	for _, ev := range col.events {
		if ev.Type == models.EventModeChange && ev.Mode == models.ModeManual {
			sawModeChange = true
		}
	}
	assert.True(t, sawModeChange)
}

// Stop is final: no ticks fire and nothing is published afterward.
func TestStopIsFinal(t *testing.T) {
	eng, mock, _, col := newTestEngine(5, &fakeControls{})
	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	advance(mock, 6, time.Second)
	eng.Stop()

	candles := col.candleCount()
	col.mu.Lock()
	ticks := len(col.ticks)
	col.mu.Unlock()

	advance(mock, 10, time.Second)

	assert.Equal(t, candles, col.candleCount(), "no candles after Stop")
	col.mu.Lock()
	assert.Equal(t, ticks, len(col.ticks), "no ticks after Stop")
	col.mu.Unlock()

	assert.False(t, eng.Status().IsRunning)
}

// A restarted session opens from the last persisted close.
func TestSeedFromLastCandle(t *testing.T) {
	eng, mock, store, col := newTestEngine(9, &fakeControls{})

	prior := models.Candle{
		Symbol:     "SYN-USDT",
		Timestamp:  testBase.Add(-5 * time.Second).UnixMilli(),
		Open:       42.0,
		High:       43.0,
		Low:        41.5,
		Close:      42.5,
		Volume:     100,
		Mode:       models.ModeAuto,
		Resolution: "5s",
	}
	require.NoError(t, store.SaveCandle(context.Background(), prior))

	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 42.5, eng.Status().CurrentPrice)

	advance(mock, 5, time.Second)
	eng.Stop()

	require.GreaterOrEqual(t, col.candleCount(), 1)
	assert.Equal(t, 42.5, col.candles[0].Open, "session opens at the persisted close")
}

// Backfill generates contiguous aligned history ending at the boundary.
func TestBackfill(t *testing.T) {
	eng, _, store, _ := newTestEngine(3, &fakeControls{})

	require.NoError(t, eng.Backfill(context.Background(), 10))

	candles, err := store.History(context.Background(), "SYN-USDT", "5s", 0, testBase.UnixMilli(), 100)
	require.NoError(t, err)
	require.Len(t, candles, 10)

	for i, c := range candles {
		assert.Zero(t, c.Timestamp%5000, "backfill candle %d aligned", i)
		assert.Greater(t, c.Volume, 0.0)
		if i > 0 {
			assert.Equal(t, int64(5000), c.Timestamp-candles[i-1].Timestamp)
		}
	}
	assert.Equal(t, testBase.Add(-5*time.Second).UnixMilli(), candles[9].Timestamp,
		"newest backfill candle ends at the current boundary")
}

// Status reflects uptime, mode and candle counters.
func TestStatus(t *testing.T) {
	controls := &fakeControls{}
	eng, mock, _, _ := newTestEngine(1, controls)

	assert.False(t, eng.Status().IsRunning)

	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	st := eng.Status()
	assert.True(t, st.IsRunning)
	assert.Equal(t, models.ModeAuto, st.Mode)
	assert.Nil(t, st.ActiveControl)

	advance(mock, 6, time.Second)
	st = eng.Status()
	assert.InDelta(t, 6.0, st.UptimeSeconds, 0.01)
	assert.Equal(t, int64(1), st.TotalCandles)
	assert.NotZero(t, st.LastCandleTime)

	controls.set(&models.ManualControl{
		Direction: models.DirectionDown, Speed: 0.01, Intensity: 1,
		StartTime: mock.Now(), DurationSeconds: 30,
	})
	st = eng.Status()
	assert.Equal(t, models.ModeManual, st.Mode)
	require.NotNil(t, st.ActiveControl)

	eng.Stop()
}

// recordingCache captures the status attached to each published tick.
type recordingCache struct {
	mu       sync.Mutex
	statuses []models.SystemStatus
}

func (c *recordingCache) SetLatest(_ context.Context, _ float64, _ models.LiveSnapshot, status models.SystemStatus) error {
	c.mu.Lock()
	c.statuses = append(c.statuses, status)
	c.mu.Unlock()
	return nil
}

// oneShotControls hands out its control exactly once, like a control that
// expires immediately after the tick it drove.
type oneShotControls struct {
	mu   sync.Mutex
	ctrl *models.ManualControl
}

func (o *oneShotControls) Active() *models.ManualControl {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctrl := o.ctrl
	o.ctrl = nil
	return ctrl
}

// The status attached to a tick reflects the control the tick was generated
// under, even when that control expires before the status is assembled.
func TestTickStatusMatchesGeneratingControl(t *testing.T) {
	cfg := testEngineConfig()
	mock := clock.NewMock()
	mock.Set(testBase)
	gen := market.NewGenerator(market.Config{
		BasePrice:  cfg.BasePrice,
		Volatility: cfg.Volatility,
		VolumeBase: cfg.VolumeBase,
	}, 17)
	cache := &recordingCache{}
	controls := &oneShotControls{ctrl: &models.ManualControl{
		ID:              "once",
		Direction:       models.DirectionUp,
		Speed:           0.02,
		Intensity:       1,
		StartTime:       testBase,
		DurationSeconds: 1,
	}}
	eng := New(cfg, mock, gen, controls, storage.NewMemoryStore(), cache)

	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)
	advance(mock, 1, time.Second)
	eng.Stop()

	cache.mu.Lock()
	defer cache.mu.Unlock()
	require.NotEmpty(t, cache.statuses)
	assert.Equal(t, models.ModeManual, cache.statuses[0].Mode,
		"status must describe the control that drove the tick")
	require.NotNil(t, cache.statuses[0].ActiveControl)
	assert.Equal(t, "once", cache.statuses[0].ActiveControl.ID)
}

// Status can be read from other goroutines while the loop closes candles.
// Run with the race detector.
func TestStatusConcurrentWithCloses(t *testing.T) {
	eng, mock, _, _ := newTestEngine(21, &fakeControls{})
	require.NoError(t, eng.Start())
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					st := eng.Status()
					assert.GreaterOrEqual(t, int(st.Regime), 0)
					assert.LessOrEqual(t, int(st.Regime), int(models.RegimeMarkdown))
				}
			}
		}()
	}

	advance(mock, 50, time.Second)
	close(done)
	wg.Wait()
	eng.Stop()
}

// Starting twice is an error; stopping twice is harmless.
func TestStartStopLifecycle(t *testing.T) {
	eng, _, _, _ := newTestEngine(2, &fakeControls{})

	require.NoError(t, eng.Start())
	time.Sleep(50 * time.Millisecond)
	assert.Error(t, eng.Start())

	eng.Stop()
	eng.Stop() // second stop is a no-op
}
