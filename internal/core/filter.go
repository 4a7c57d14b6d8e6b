package core

import "sync"

// FilterMode is the subscription state of one connection.
type FilterMode int

const (
	// FilterNone delivers nothing. This is the default after connect:
	// a client receives no traffic until it opts in.
	FilterNone FilterMode = iota
	// FilterAll delivers every envelope regardless of channel.
	FilterAll
	// FilterNamed delivers only envelopes published to one exact channel.
	FilterNamed
)

// Filter is the per-connection subscription filter. It is written by the
// connection's reader goroutine and read by its forwarder goroutine, so
// access goes through a mutex. Changing the filter affects only future
// deliveries; nothing is re-delivered.
type Filter struct {
	mu      sync.Mutex
	mode    FilterMode
	channel string
}

// NewFilter returns a filter in the FilterNone state.
func NewFilter() *Filter {
	return &Filter{mode: FilterNone}
}

// SetAll switches the filter to deliver every envelope.
func (f *Filter) SetAll() {
	f.mu.Lock()
	f.mode = FilterAll
	f.channel = ""
	f.mu.Unlock()
}

// SetNone switches the filter to deliver nothing.
func (f *Filter) SetNone() {
	f.mu.Lock()
	f.mode = FilterNone
	f.channel = ""
	f.mu.Unlock()
}

// SetNamed subscribes the filter to exactly one channel.
func (f *Filter) SetNamed(channel string) {
	f.mu.Lock()
	f.mode = FilterNamed
	f.channel = channel
	f.mu.Unlock()
}

// Get returns the current mode and, for FilterNamed, the channel.
func (f *Filter) Get() (FilterMode, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, f.channel
}

// Matches reports whether an envelope passes the filter. Named channels
// match by exact, case-sensitive equality.
func (f *Filter) Matches(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.mode {
	case FilterAll:
		return true
	case FilterNamed:
		return f.channel == env.Channel
	default:
		return false
	}
}
