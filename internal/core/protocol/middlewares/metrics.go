package middlewares

import (
	"context"
	"sync"
	"time"

	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// MethodStats summarizes calls to one method.
type MethodStats struct {
	Count       int64         `json:"count"`
	Errors      int64         `json:"errors"`
	TotalTime   time.Duration `json:"total_time"`
	AverageTime time.Duration `json:"average_time"`
	LastCall    time.Time     `json:"last_call"`
}

// Metrics counts calls per method.
type Metrics struct {
	methods sync.Map // protocol.Method -> *methodMetrics
}

type methodMetrics struct {
	mu        sync.Mutex
	count     int64
	errors    int64
	totalTime time.Duration
	lastCall  time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Middleware records every call that passes through it.
func (m *Metrics) Middleware(next protocol.Handler) protocol.Handler {
	return protocol.HandlerFunc(func(ctx context.Context, req *protocol.Message) *protocol.Message {
		start := time.Now()
		resp := next.Handle(ctx, req)
		m.record(req.Method, time.Since(start), resp.Error != nil)
		return resp
	})
}

func (m *Metrics) record(method protocol.Method, d time.Duration, failed bool) {
	v, _ := m.methods.LoadOrStore(method, &methodMetrics{})
	mm := v.(*methodMetrics)

	mm.mu.Lock()
	mm.count++
	mm.totalTime += d
	mm.lastCall = time.Now()
	if failed {
		mm.errors++
	}
	mm.mu.Unlock()
}

// Snapshot returns the stats of every method called so far.
func (m *Metrics) Snapshot() map[protocol.Method]MethodStats {
	out := make(map[protocol.Method]MethodStats)
	m.methods.Range(func(key, value any) bool {
		mm := value.(*methodMetrics)
		mm.mu.Lock()
		st := MethodStats{
			Count:     mm.count,
			Errors:    mm.errors,
			TotalTime: mm.totalTime,
			LastCall:  mm.lastCall,
		}
		if mm.count > 0 {
			st.AverageTime = mm.totalTime / time.Duration(mm.count)
		}
		mm.mu.Unlock()
		out[key.(protocol.Method)] = st
		return true
	})
	return out
}
