// Package interfaces provides internal interface definitions for bdbm-mq.
// These are separate from the public interfaces to avoid circular imports
// between the root package and its internal packages.
package interfaces

import (
	"context"

	"github.com/jhoonl/bdbm-mq/internal/request"
)

// DeviceModel is the asynchronous backend the dispatcher drives. Submit must
// not block waiting for completion: it accepts or rejects the request, and
// the actual completion arrives later via a call back into the dispatcher's
// Complete method, from whatever goroutine the device model completes on.
type DeviceModel interface {
	Submit(ctx context.Context, req *request.Request) error
}

// UpperLayer receives terminal completions.
type UpperLayer interface {
	EndReq(req *request.Request)
}

// Logger is the optional logging sink used throughout the dispatcher.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer collects metrics. Implementations must be thread-safe: methods
// are called from the dispatcher goroutine and from device-model completion
// goroutines concurrently.
type Observer interface {
	ObserveSubmit(pu int)
	ObserveComplete(pu int, kind request.Kind, latencyNs uint64, success bool)
	ObserveQueueDepth(depth int)
}
