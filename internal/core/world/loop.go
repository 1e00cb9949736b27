package world

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
)

const (
	DefaultTickPeriod  = 40 * time.Millisecond
	DefaultTickTimeout = 5 * time.Second
)

// Ticker is what the loop drives. *Store satisfies it.
type Ticker interface {
	Tick(ctx context.Context) TickResult
}

// LoopConfig holds loop timing.
type LoopConfig struct {
	// Period between tick starts.
	Period time.Duration
	// Timeout bounds the durable write of a single tick.
	Timeout time.Duration
	// OnTick, if set, is called after every completed tick from the loop
	// goroutine.
	OnTick func(TickResult)
}

// LoopStats is a point-in-time view of loop counters.
type LoopStats struct {
	Running         bool          `json:"running"`
	Ticks           uint64        `json:"ticks"`
	FailedTicks     uint64        `json:"failed_ticks"`
	Panics          uint64        `json:"panics"`
	LastTick        uint64        `json:"last_tick"`
	LastDuration    time.Duration `json:"last_duration"`
	LastError       string        `json:"last_error,omitempty"`
	PersistFailures uint64        `json:"persist_failures"`
}

// Loop ticks a world at a fixed period until stopped. A failing or panicking
// tick is logged and the loop carries on.
type Loop struct {
	ticker Ticker
	config LoopConfig
	logger log.Log

	lifecycle sync.Mutex
	running   int32 // atomic bool
	stopChan  chan struct{}
	done      chan struct{}

	ticks        atomic.Uint64
	failedTicks  atomic.Uint64
	panics       atomic.Uint64
	lastTick     atomic.Uint64
	lastDuration atomic.Int64
	lastErr      atomic.Pointer[string]
	persistFails atomic.Uint64
}

func NewLoop(ticker Ticker, config LoopConfig, logger log.Log) *Loop {
	if config.Period <= 0 {
		config.Period = DefaultTickPeriod
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTickTimeout
	}

	return &Loop{
		ticker: ticker,
		config: config,
		logger: logger.With(log.String("component", "loop")),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return ErrLoopRunning
	}

	l.stopChan = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stopChan, l.done)

	l.logger.Info("Simulation loop started", log.Duration("period", l.config.Period))
	return nil
}

// Stop signals the loop and waits for the in-flight tick, including its
// durable write, to finish.
func (l *Loop) Stop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if !atomic.CompareAndSwapInt32(&l.running, 1, 0) {
		return ErrLoopNotRunning
	}

	close(l.stopChan)
	<-l.done

	l.logger.Info("Simulation loop stopped", log.Uint64("ticks", l.ticks.Load()))
	return nil
}

func (l *Loop) Running() bool {
	return atomic.LoadInt32(&l.running) == 1
}

func (l *Loop) Stats() LoopStats {
	st := LoopStats{
		Running:         l.Running(),
		Ticks:           l.ticks.Load(),
		FailedTicks:     l.failedTicks.Load(),
		Panics:          l.panics.Load(),
		LastTick:        l.lastTick.Load(),
		LastDuration:    time.Duration(l.lastDuration.Load()),
		PersistFailures: l.persistFails.Load(),
	}
	if msg := l.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

func (l *Loop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tickOnce()
		case <-stop:
			return
		}
	}
}

func (l *Loop) tickOnce() {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.failedTicks.Add(1)
			msg := fmt.Sprintf("tick panicked: %v", r)
			l.lastErr.Store(&msg)
			l.logger.Error("Tick panicked", log.Any("panic", r))
		}
	}()

	// Stop never cancels a tick; Timeout alone bounds its durable write.
	ctx, cancel := context.WithTimeout(context.Background(), l.config.Timeout)
	defer cancel()

	res := l.ticker.Tick(ctx)

	l.ticks.Add(1)
	l.lastTick.Store(res.Tick)
	l.lastDuration.Store(int64(res.Duration))
	if res.Err != nil {
		l.failedTicks.Add(1)
		l.persistFails.Add(uint64(len(res.Failed)))
		msg := res.Err.Error()
		l.lastErr.Store(&msg)
	}
	if res.Duration > l.config.Period {
		l.logger.Warn("Tick overran its period",
			log.Uint64("tick", res.Tick),
			log.Duration("duration", res.Duration),
			log.Duration("period", l.config.Period))
	}

	if l.config.OnTick != nil {
		l.config.OnTick(res)
	}
}
