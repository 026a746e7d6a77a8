// Package filter decides which inbound frames reach the dispatcher.
package filter

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tapstack/internal/core"
)

// Filter inspects a frame and passes it on by calling chain.Filter.
// Not calling the chain drops the frame.
type Filter interface {
	Filter(frame *core.Frame, chain *FilterChain)
}

// CounterFilter counts the frames that reach it and passes every one on.
// Placed last in a chain it counts the frames the other filters accepted.
type CounterFilter struct {
	count  atomic.Uint64
	metric prometheus.Counter
}

// NewCounterFilter returns a CounterFilter that also increments metric,
// which may be nil.
func NewCounterFilter(metric prometheus.Counter) *CounterFilter {
	return &CounterFilter{metric: metric}
}

func (f *CounterFilter) Filter(frame *core.Frame, chain *FilterChain) {
	f.count.Add(1)
	if f.metric != nil {
		f.metric.Inc()
	}
	chain.Filter(frame)
}

// Count returns the number of frames seen so far.
func (f *CounterFilter) Count() uint64 {
	return f.count.Load()
}
