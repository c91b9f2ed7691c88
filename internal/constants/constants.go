package constants

// Default configuration constants
const (
	// DefaultHighWaterMark is the default admission-control threshold: the
	// total number of queued-plus-in-flight items across all PU buckets at
	// which Submit starts spinning instead of returning.
	DefaultHighWaterMark = 256

	// DefaultNumChannels and DefaultChipsPerChannel describe a small but
	// realistic NAND array when a caller doesn't specify a topology.
	DefaultNumChannels     = 4
	DefaultChipsPerChannel = 2

	// NoCPUAffinity indicates the dispatcher goroutine's OS thread should not
	// be pinned to a particular CPU.
	NoCPUAffinity = -1
)
