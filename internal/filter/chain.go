package filter

import "firestige.xyz/tapstack/internal/core"

// FilterChain runs filters in order and hands surviving frames to handler.
type FilterChain struct {
	handler func(frame *core.Frame)
	current Filter
	next    *FilterChain
}

// NewFilterChain links filters in front of handler.
func NewFilterChain(handler func(frame *core.Frame), filters ...Filter) *FilterChain {
	chain := &FilterChain{handler: handler}
	for i := len(filters) - 1; i >= 0; i-- {
		chain = &FilterChain{handler: handler, current: filters[i], next: chain}
	}
	return chain
}

// Filter passes frame to the next filter, or to the handler at the end.
func (c *FilterChain) Filter(frame *core.Frame) {
	if c.current != nil && c.next != nil {
		c.current.Filter(frame, c.next)
		return
	}
	c.handler(frame)
}
