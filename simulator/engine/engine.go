// Package engine drives the synthetic market: it ticks the price process,
// folds ticks into the live candle, finalizes candles on interval
// boundaries, and hands results to the publication boundary.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/shared/models"
	"github.com/syntick/syntick/simulator/market"
)

const (
	publicationBuffer   = 256
	collaboratorTimeout = 3 * time.Second
)

// CandleStore is the engine's view of durable candle storage. Failures are
// logged and swallowed; they never affect the simulation.
type CandleStore interface {
	LastCandle(ctx context.Context, symbol, resolution string) (*models.Candle, error)
	SaveCandle(ctx context.Context, candle models.Candle) error
}

// LatestCache is a best-effort, short-TTL write-through for the freshest
// price, live candle and status.
type LatestCache interface {
	SetLatest(ctx context.Context, price float64, snap models.LiveSnapshot, status models.SystemStatus) error
}

// ControlSource yields the authoritative manual control, if any.
type ControlSource interface {
	Active() *models.ManualControl
}

// liveCandle is the mutable state of the open candle.
type liveCandle struct {
	start  time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

func newLiveCandle(start time.Time, open float64) liveCandle {
	return liveCandle{start: start, open: open, high: open, low: open, close: open}
}

// publication is one unit of work for the fan-out goroutine.
type publication struct {
	tick   *models.LiveSnapshot
	candle *models.Candle
	event  *models.Event
	status models.SystemStatus
	price  float64
}

// Engine owns all simulation state. Both cadences (live tick, candle close)
// run on one loop goroutine, so state is never concurrently touched and a
// candle's finalize-and-reset is atomic with respect to live ticks.
type Engine struct {
	cfg      *config.SimulatorConfig
	clock    clock.Clock
	gen      *market.Generator
	controls ControlSource
	store    CandleStore
	cache    LatestCache

	tickFns   []func(models.LiveSnapshot)
	candleFns []func(models.Candle)
	eventFns  []func(models.Event)

	pubCh    chan publication
	stopCh   chan struct{}
	loopDone chan struct{}
	pubDone  chan struct{}

	// Loop-owned state, mirrored under mu only for Status().
	live       liveCandle
	manualSeen bool
	lastActive bool

	mu             sync.RWMutex
	running        bool
	startedAt      time.Time
	lastCandleTime int64
	totalCandles   int64
	currentPrice   float64
	regime         models.Regime
}

// New wires an engine from its collaborators. Callbacks must be registered
// before Start.
func New(cfg *config.SimulatorConfig, clk clock.Clock, gen *market.Generator, controls ControlSource, store CandleStore, cache LatestCache) *Engine {
	return &Engine{
		cfg:      cfg,
		clock:    clk,
		gen:      gen,
		controls: controls,
		store:    store,
		cache:    cache,
		regime:   gen.Regime(),
	}
}

// OnTick registers a live-tick subscriber.
func (e *Engine) OnTick(fn func(models.LiveSnapshot)) { e.tickFns = append(e.tickFns, fn) }

// OnCandle registers a candle-close subscriber.
func (e *Engine) OnCandle(fn func(models.Candle)) { e.candleFns = append(e.candleFns, fn) }

// OnEvent registers a state-change subscriber.
func (e *Engine) OnEvent(fn func(models.Event)) { e.eventFns = append(e.eventFns, fn) }

// Start seeds the session from the last persisted candle and launches the
// tick loop. It returns an error if the engine is already running.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.startedAt = e.clock.Now()
	e.mu.Unlock()

	e.seedFromStore()

	now := e.clock.Now()
	e.live = newLiveCandle(now.Truncate(e.cfg.Interval), e.gen.Price())
	e.manualSeen = false
	e.lastActive = false
	e.setPrice(e.gen.Price())

	e.pubCh = make(chan publication, publicationBuffer)
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.pubDone = make(chan struct{})

	go e.publishLoop()
	go e.runLoop()

	log.Printf("engine started: symbol=%s interval=%v tick=%v price=%.4f",
		e.cfg.Symbol, e.cfg.Interval, e.cfg.TickInterval, e.gen.Price())
	return nil
}

// Stop halts the engine. When it returns, no further ticks fire and no
// further publications occur.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.loopDone
	close(e.pubCh)
	<-e.pubDone

	log.Printf("engine stopped: %d candles this session", e.TotalCandles())
}

// Status reports the engine's serialized view.
func (e *Engine) Status() models.SystemStatus {
	return e.statusWith(e.controls.Active())
}

// statusWith builds the status view around an already-resolved control, so
// a publication's status agrees with the control its tick was generated
// under. The regime is read from the mu-guarded mirror, never from the
// generator, which only the loop goroutine may touch.
func (e *Engine) statusWith(ctrl *models.ManualControl) models.SystemStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := models.SystemStatus{
		Mode:           models.ModeAuto,
		Regime:         e.regime,
		IsRunning:      e.running,
		LastCandleTime: e.lastCandleTime,
		CurrentPrice:   e.currentPrice,
		TotalCandles:   e.totalCandles,
	}
	if e.running {
		status.UptimeSeconds = e.clock.Now().Sub(e.startedAt).Seconds()
	}
	if ctrl != nil {
		status.Mode = models.ModeManual
		status.ActiveControl = ctrl
	}
	return status
}

// TotalCandles returns the number of candles finalized this session.
func (e *Engine) TotalCandles() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalCandles
}

// Backfill synchronously generates n historical candles ending at the
// current interval boundary and persists them, so charts have history on
// first boot. Must be called before Start.
func (e *Engine) Backfill(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	ticksPerCandle := int(e.cfg.Interval / e.cfg.TickInterval)
	if ticksPerCandle < 1 {
		ticksPerCandle = 1
	}

	boundary := e.clock.Now().Truncate(e.cfg.Interval)
	for i := n; i > 0; i-- {
		start := boundary.Add(-time.Duration(i) * e.cfg.Interval)
		lc := newLiveCandle(start, e.gen.Price())
		for t := 0; t < ticksPerCandle; t++ {
			res := e.gen.Step(nil)
			lc.fold(res)
		}
		candle := lc.finalize(e.cfg.Symbol, e.cfg.Resolution, models.ModeAuto, e.cfg.VolumeBase)
		e.gen.CloseCandle(candle.Close)
		if err := e.store.SaveCandle(ctx, candle); err != nil {
			return fmt.Errorf("persist backfill candle: %w", err)
		}
	}
	e.mu.Lock()
	e.regime = e.gen.Regime()
	e.mu.Unlock()

	log.Printf("backfilled %d candles, price now %.4f", n, e.gen.Price())
	return nil
}

// runLoop is the single-threaded scheduler: two logical timers, one
// goroutine, so the two cadences can never race each other.
func (e *Engine) runLoop() {
	defer close(e.loopDone)

	ticker := e.clock.Ticker(e.cfg.TickInterval)
	defer ticker.Stop()

	closeTimer := e.clock.Timer(e.untilNextBoundary())
	defer closeTimer.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.step()
		case <-closeTimer.C:
			e.closeCandle()
			closeTimer.Reset(e.untilNextBoundary())
		}
	}
}

// untilNextBoundary returns the wait until the next interval-aligned close.
func (e *Engine) untilNextBoundary() time.Duration {
	now := e.clock.Now()
	next := now.Truncate(e.cfg.Interval).Add(e.cfg.Interval)
	d := next.Sub(now)
	if d <= 0 {
		d = e.cfg.Interval
	}
	return d
}

// step runs one live tick: generate a price, fold it into the open candle,
// publish a snapshot.
func (e *Engine) step() {
	now := e.clock.Now()
	ctrl := e.controls.Active()
	res := e.gen.Step(ctrl)

	e.live.fold(res)

	active := ctrl != nil
	if active {
		e.manualSeen = true
	}
	e.setPrice(res.Price)

	var event *models.Event
	if active != e.lastActive {
		mode := models.ModeAuto
		if active {
			mode = models.ModeManual
		}
		event = &models.Event{
			Type:      models.EventModeChange,
			Timestamp: now.UnixMilli(),
			Mode:      mode,
			Regime:    e.gen.Regime(),
		}
		e.lastActive = active
	} else if res.Shock != nil {
		event = &models.Event{
			Type:      models.EventMarketShock,
			Timestamp: now.UnixMilli(),
			Regime:    e.gen.Regime(),
			Detail:    string(res.Shock.Kind),
		}
	}

	remaining := e.live.start.Add(e.cfg.Interval).Sub(now).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	snap := models.LiveSnapshot{
		Timestamp:     e.live.start.UnixMilli(),
		Open:          e.live.open,
		High:          e.live.high,
		Low:           e.live.low,
		Close:         e.live.close,
		Volume:        e.live.volume,
		Resolution:    e.cfg.Resolution,
		TimeRemaining: remaining,
	}

	e.publish(publication{tick: &snap, event: event, status: e.statusWith(ctrl), price: res.Price})
}

// closeCandle finalizes the open candle and starts the next interval. The
// new candle opens at the just-closed close, and its timestamp is floored
// to the boundary so late timer callbacks cannot accumulate drift.
func (e *Engine) closeCandle() {
	mode := models.ModeAuto
	if e.manualSeen {
		mode = models.ModeManual
	}
	candle := e.live.finalize(e.cfg.Symbol, e.cfg.Resolution, mode, e.cfg.VolumeBase)

	regime, changed := e.gen.CloseCandle(candle.Close)

	nextStart := e.live.start.Add(e.cfg.Interval)
	if boundary := e.clock.Now().Truncate(e.cfg.Interval); boundary.After(nextStart) {
		nextStart = boundary
	}
	e.live = newLiveCandle(nextStart, candle.Close)
	e.manualSeen = false

	e.mu.Lock()
	e.lastCandleTime = candle.Timestamp
	e.totalCandles++
	e.regime = regime
	e.mu.Unlock()

	var event *models.Event
	if changed {
		event = &models.Event{
			Type:      models.EventRegimeChange,
			Timestamp: e.clock.Now().UnixMilli(),
			Regime:    regime,
		}
	}

	e.publish(publication{candle: &candle, event: event, status: e.Status(), price: candle.Close})
}

// publish hands work to the fan-out goroutine without ever blocking the
// tick loop. A full buffer drops the publication.
func (e *Engine) publish(p publication) {
	select {
	case e.pubCh <- p:
	default:
		log.Printf("⚠️ publication buffer full, dropping update")
	}
}

// publishLoop is the publication boundary: collaborator calls happen here,
// off the tick loop, and their failures are logged, never propagated.
func (e *Engine) publishLoop() {
	defer close(e.pubDone)

	for p := range e.pubCh {
		if p.tick != nil {
			for _, fn := range e.tickFns {
				fn(*p.tick)
			}
			ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			if err := e.cache.SetLatest(ctx, p.price, *p.tick, p.status); err != nil {
				log.Printf("⚠️ cache write failed: %v", err)
			}
			cancel()
		}
		if p.candle != nil {
			ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			if err := e.store.SaveCandle(ctx, *p.candle); err != nil {
				log.Printf("⚠️ candle persistence failed: %v", err)
			}
			cancel()
			for _, fn := range e.candleFns {
				fn(*p.candle)
			}
		}
		if p.event != nil {
			for _, fn := range e.eventFns {
				fn(*p.event)
			}
		}
	}
}

// seedFromStore opens the session from the last persisted close when one
// exists.
func (e *Engine) seedFromStore() {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	last, err := e.store.LastCandle(ctx, e.cfg.Symbol, e.cfg.Resolution)
	if err != nil {
		log.Printf("⚠️ could not load last candle, starting from base price: %v", err)
		return
	}
	if last != nil {
		e.gen.SetPrice(last.Close)
		log.Printf("seeded session from last candle: close=%.4f at %d", last.Close, last.Timestamp)
	}
}

func (e *Engine) setPrice(p float64) {
	e.mu.Lock()
	e.currentPrice = p
	e.mu.Unlock()
}

// fold applies one tick result to the open candle.
func (lc *liveCandle) fold(res market.StepResult) {
	if res.Price > lc.high {
		lc.high = res.Price
	}
	if res.Price < lc.low {
		lc.low = res.Price
	}
	lc.close = res.Price
	lc.volume += res.Volume
}

// finalize converts the open candle into an immutable Candle. Volume gets a
// small floor so a candle that saw no ticks is still well-formed.
func (lc *liveCandle) finalize(symbol, resolution string, mode models.Mode, volumeBase float64) models.Candle {
	volume := lc.volume
	if volume <= 0 {
		volume = volumeBase * 0.001
	}
	return models.Candle{
		Symbol:     symbol,
		Timestamp:  lc.start.UnixMilli(),
		Open:       lc.open,
		High:       lc.high,
		Low:        lc.low,
		Close:      lc.close,
		Volume:     volume,
		Mode:       mode,
		Resolution: resolution,
	}
}
