package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	bdbmq "github.com/jhoonl/bdbm-mq"
	"github.com/jhoonl/bdbm-mq/devicemodel"
	"github.com/jhoonl/bdbm-mq/internal/logging"
)

func main() {
	var (
		channels  = flag.Int("channels", 8, "Number of NAND channels")
		chips     = flag.Int("chips", 4, "Chips per channel")
		reqs      = flag.Int("reqs", 10000, "Number of requests to submit")
		rmwRatio  = flag.Float64("rmw", 0.1, "Fraction of requests submitted as read-modify-write")
		latency   = flag.Duration("latency", 50*time.Microsecond, "Simulated per-operation device latency")
		affinity  = flag.Int("affinity", -1, "Pin the dispatcher thread to this CPU (-1 = off)")
		serialize = flag.Bool("serialize", false, "Force end-to-end request serialization (debug)")
		deferred  = flag.Bool("deferred-move", false, "Use the deferred-move RMW strategy instead of pre-enqueue")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	upper := &countingUpperLayer{}

	var d *bdbmq.Dispatcher
	dm := devicemodel.New(devicemodel.Config{
		NumChannels:     *channels,
		ChipsPerChannel: *chips,
		Latency:         *latency,
		Complete: func(req *bdbmq.Request) {
			d.Complete(req)
		},
	})

	cfg := bdbmq.DefaultConfig()
	cfg.NumChannels = *channels
	cfg.ChipsPerChannel = *chips
	cfg.CPUAffinity = *affinity
	cfg.SerializeDebug = *serialize
	cfg.DeviceModel = dm
	cfg.UpperLayer = upper
	if *deferred {
		cfg.RMWStrategy = bdbmq.RMWDeferredMove
	}

	d, err := bdbmq.New(cfg)
	if err != nil {
		log.Fatalf("failed to create dispatcher: %v", err)
	}

	logger.Info("dispatcher created",
		"channels", *channels,
		"chips_per_channel", *chips,
		"parallel_units", d.NumPU())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()

	for i := 0; i < *reqs; i++ {
		req := randomRequest(rng, *channels, *chips, *rmwRatio)
		if err := d.Submit(req); err != nil {
			logger.Error("submit failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		logger.Error("flush failed", "error", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	if err := d.Close(); err != nil {
		logger.Error("close failed", "error", err)
		os.Exit(1)
	}

	snap := d.MetricsSnapshot()
	fmt.Printf("Submitted:      %d requests in %v\n", *reqs, elapsed.Round(time.Millisecond))
	fmt.Printf("Completed:      %d (end_req calls: %d)\n", snap.TotalOps, upper.Count())
	fmt.Printf("Errors:         %d (%.2f%%)\n", snap.TotalErrors, snap.ErrorRate)
	fmt.Printf("Throughput:     %.0f IOPS\n", float64(*reqs)/elapsed.Seconds())
	fmt.Printf("Avg latency:    %v\n", time.Duration(snap.AvgLatencyNs))
	fmt.Printf("P50/P99:        %v / %v\n", time.Duration(snap.LatencyP50Ns), time.Duration(snap.LatencyP99Ns))
	fmt.Printf("Max queue depth: %d\n", snap.MaxQueueDepth)
	fmt.Printf("Pages resident: %d\n", dm.PageCount())
}

// countingUpperLayer is the demo's stand-in for the upper FTL: it only counts
// terminal completions.
type countingUpperLayer struct {
	mu    sync.Mutex
	count int
}

func (u *countingUpperLayer) EndReq(req *bdbmq.Request) {
	u.mu.Lock()
	u.count++
	u.mu.Unlock()
}

func (u *countingUpperLayer) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// randomRequest builds one workload request: mostly reads and writes spread
// across the whole array, with the requested fraction of RMWs whose write
// phase targets a different random location.
func randomRequest(rng *rand.Rand, channels, chips int, rmwRatio float64) *bdbmq.Request {
	addr := func() bdbmq.PhysAddr {
		return bdbmq.PhysAddr{
			Channel: uint32(rng.Intn(channels)),
			Chip:    uint32(rng.Intn(chips)),
			Block:   uint32(rng.Intn(256)),
			Page:    uint32(rng.Intn(128)),
		}
	}

	req := &bdbmq.Request{
		Primary: addr(),
		LPA:     uint64(rng.Intn(1 << 20)),
	}

	switch {
	case rng.Float64() < rmwRatio:
		req.Kind = bdbmq.RMWRead
		req.Secondary = addr()
	case rng.Intn(2) == 0:
		req.Kind = bdbmq.Read
	default:
		req.Kind = bdbmq.Write
	}
	return req
}
