package dispatch

import "go.uber.org/zap"

// Option configures a Dispatcher via the functional-options pattern,
// mirroring the teacher's internal/core.Option / core/options.go.
type Option func(*Dispatcher)

// WithLogSink configures the Dispatcher's SaveData destination.
func WithLogSink(sink LogSink) Option {
	return func(d *Dispatcher) { d.logSink = sink }
}

// WithOutboundSink configures the Dispatcher's SendData/Broadcast
// destination.
func WithOutboundSink(sink OutboundSink) Option {
	return func(d *Dispatcher) { d.outbound = sink }
}

// WithLogger configures the Dispatcher's structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithDepthLimit overrides the default SelectEvent chain evaluation depth
// limit (spec.md §4.5 default 64). CueEvent chains do not count against it.
func WithDepthLimit(limit int) Option {
	return func(d *Dispatcher) { d.depthLimit = limit }
}

// WithInboundCapacity overrides the default inbound channel capacity
// (spec.md §5 default 128).
func WithInboundCapacity(capacity int) Option {
	return func(d *Dispatcher) { d.inboundCapacity = capacity }
}
