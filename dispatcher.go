package bdbmq

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/jhoonl/bdbm-mq/internal/constants"
	"github.com/jhoonl/bdbm-mq/internal/dispatch"
	"github.com/jhoonl/bdbm-mq/internal/logging"
)

// DeviceModel is the asynchronous backend the dispatcher drives. Submit must
// not block waiting for completion: it accepts or rejects the request, and
// the actual completion arrives later via a call back into the dispatcher's
// Complete method, from whatever goroutine the device model completes on.
type DeviceModel interface {
	Submit(ctx context.Context, req *Request) error
}

// UpperLayer receives terminal completions.
type UpperLayer interface {
	EndReq(req *Request)
}

// Logger is the optional logging sink used throughout the dispatcher.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// RMWStrategy selects how the write phase of a read-modify-write request
// reaches the queue. See DESIGN.md for the tradeoff between the two.
type RMWStrategy = dispatch.RMWStrategy

const (
	// RMWPreEnqueue inserts both phases at Submit time; the write phase is
	// counted in its bucket but withheld from the bucket's heap, ineligible
	// for dispatch until the read phase completes. The default.
	RMWPreEnqueue = dispatch.RMWPreEnqueue
	// RMWDeferredMove inserts only the read phase at Submit time and moves
	// it into the write-phase bucket when the read phase completes.
	RMWDeferredMove = dispatch.RMWDeferredMove
)

// Config configures a Dispatcher.
type Config struct {
	// NumChannels and ChipsPerChannel describe the NAND array topology.
	// Parallel units are numbered channel*ChipsPerChannel + chip.
	NumChannels     int
	ChipsPerChannel int

	// HighWaterMark is the total queued-plus-in-flight item count at which
	// Submit starts spinning instead of returning, providing backpressure
	// against an unbounded producer.
	HighWaterMark int

	// RMWStrategy selects the read-modify-write phase transition scheme.
	RMWStrategy RMWStrategy

	// CPUAffinity pins the dispatcher goroutine's OS thread to a specific
	// CPU core. constants.NoCPUAffinity (-1) disables pinning.
	CPUAffinity int

	// SerializeDebug holds a single global token from each Submit until
	// that request's terminal completion, forcing one request in flight
	// end-to-end. Intended for debugging suspected races; never use in
	// production.
	SerializeDebug bool

	DeviceModel DeviceModel
	UpperLayer  UpperLayer
	Logger      Logger
	Observer    Observer
}

// DefaultConfig returns a sensible default configuration for a small NAND
// array. Callers must still set DeviceModel and, typically, UpperLayer.
func DefaultConfig() Config {
	return Config{
		NumChannels:     constants.DefaultNumChannels,
		ChipsPerChannel: constants.DefaultChipsPerChannel,
		HighWaterMark:   constants.DefaultHighWaterMark,
		RMWStrategy:     RMWPreEnqueue,
		CPUAffinity:     constants.NoCPUAffinity,
	}
}

// Dispatcher fans requests out across parallel units, serializes per-unit
// access, and drives the configured device model and upper layer.
type Dispatcher struct {
	cfg     Config
	engine  *dispatch.Engine
	metrics *Metrics
	closed  atomic.Bool
}

// New constructs and starts a Dispatcher. Failure during setup unwinds
// anything already started before returning the error.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.NumChannels <= 0 || cfg.ChipsPerChannel <= 0 {
		return nil, NewError("New", ErrCodeInvalidTopology, "NumChannels and ChipsPerChannel must be positive")
	}
	if cfg.DeviceModel == nil {
		return nil, NewError("New", ErrCodeInvalidRequest, "DeviceModel is required")
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = constants.DefaultHighWaterMark
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	numPU := cfg.NumChannels * cfg.ChipsPerChannel

	engine := dispatch.NewEngine(dispatch.Config{
		NumPU:           numPU,
		ChipsPerChannel: cfg.ChipsPerChannel,
		RMWStrategy:     cfg.RMWStrategy,
		CPUAffinity:     cfg.CPUAffinity,
		SerializeDebug:  cfg.SerializeDebug,
		DeviceModel:     cfg.DeviceModel,
		UpperLayer:      cfg.UpperLayer,
		Logger:          logger,
		Observer:        observer,
	})

	d := &Dispatcher{
		cfg:     cfg,
		engine:  engine,
		metrics: metrics,
	}
	return d, nil
}

// Submit enqueues req for dispatch, applying admission-control backpressure
// if the total queued-plus-in-flight count is at or above HighWaterMark.
// RMWRead requests have their Secondary address populated by the caller;
// Submit derives the write-phase placement from it.
func (d *Dispatcher) Submit(req *Request) error {
	if d.closed.Load() {
		return NewError("Submit", ErrCodeAlreadyClosed, "dispatcher is closed")
	}
	if req == nil {
		return NewError("Submit", ErrCodeInvalidRequest, "request is nil")
	}

	for d.engine.Queue().Total() >= d.cfg.HighWaterMark {
		runtime.Gosched()
	}

	d.engine.Submit(req)
	return nil
}

// Complete reports a terminal or RMW-read-phase completion for req. Device
// models call this from whatever goroutine they complete on.
func (d *Dispatcher) Complete(req *Request) {
	d.engine.Complete(req)
}

// Flush blocks until every parallel unit's queue has drained, or until ctx
// is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if err := dispatch.Flush(ctx, d.engine.Queue()); err != nil {
		return WrapError("Flush", ErrCodeFlushTimeout, err)
	}
	return nil
}

// Close drains the queue, stops the dispatcher goroutine, and blocking-
// acquires every parallel unit's lock to prove no request is in flight
// before returning. Callers must stop calling Submit before Close: Submit
// calls that start after Close are refused, but Close does not wait for a
// Submit already in progress.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return NewError("Close", ErrCodeAlreadyClosed, "dispatcher already closed")
	}

	dispatch.WaitDrain(d.engine.Queue())
	d.engine.Stop()

	locks := d.engine.Locks()
	for pu := 0; pu < locks.Len(); pu++ {
		locks.Lock(pu)
	}
	for pu := 0; pu < locks.Len(); pu++ {
		locks.Unlock(pu)
	}

	d.metrics.Stop()
	return nil
}

// Metrics returns the dispatcher's built-in metrics, populated only when no
// custom Observer was configured.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the built-in metrics.
func (d *Dispatcher) MetricsSnapshot() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// NumPU returns the number of parallel units this dispatcher manages.
func (d *Dispatcher) NumPU() int {
	return d.cfg.NumChannels * d.cfg.ChipsPerChannel
}

// QueueDepth returns the total number of queued-plus-in-flight items across
// all parallel units.
func (d *Dispatcher) QueueDepth() int {
	return d.engine.Queue().Total()
}

// IsClosed reports whether Close has run.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}
