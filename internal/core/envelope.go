package core

// Envelope is one message in flight on the bus. The channel is an opaque
// routing key with no reserved values; filtering happens per subscriber.
// Envelopes are immutable once published.
type Envelope struct {
	Channel string
	Content string
	Sender  Identity
}
