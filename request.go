// Package bdbmq implements a multi-queue NAND flash I/O dispatcher: a
// concurrency-safe front end that fans incoming requests out across
// parallel units (channel x chip), serializes per-unit access, and manages
// the two-phase read/write lifecycle of read-modify-write requests.
package bdbmq

import (
	"github.com/jhoonl/bdbm-mq/internal/request"
)

// Re-export the wire-free request types for the public API, so callers never
// import internal/request directly.

// PhysAddr names one NAND physical location.
type PhysAddr = request.PhysAddr

// RequestKind enumerates the request kinds the dispatcher understands.
type RequestKind = request.Kind

const (
	Read      = request.Read
	ReadDummy = request.ReadDummy
	Write     = request.Write
	Trim      = request.Trim
	GCRead    = request.GCRead
	GCWrite   = request.GCWrite
	GCErase   = request.GCErase
	RMWRead   = request.RMWRead
	RMWWrite  = request.RMWWrite
)

// Request is the record callers build and pass to Submit, and the one the
// dispatcher and device model pass back and forth until EndReq.
type Request = request.Request
