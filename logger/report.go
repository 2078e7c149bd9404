package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type counterStat struct {
	events int64
	items  int64
}

var (
	errorsPoller   int64
	errorsUpstream int64
	warnsPoller    int64
	warnsUpstream  int64
	pollTicks      int64
	batchesApplied int64
	counters       sync.Map // map[string]*counterStat
)

func recordWarn(component string) {
	if strings.Contains(component, "poller") {
		atomic.AddInt64(&warnsPoller, 1)
	} else if strings.Contains(component, "upstream") {
		atomic.AddInt64(&warnsUpstream, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "poller") {
		atomic.AddInt64(&errorsPoller, 1)
	} else if strings.Contains(component, "upstream") {
		atomic.AddInt64(&errorsUpstream, 1)
	}
}

// IncrementPollTick counts one scheduler tick that dispatched a fetch.
func IncrementPollTick() {
	atomic.AddInt64(&pollTicks, 1)
	recordCounter("poll_tick", 1)
}

// IncrementBatchApplied counts one feed batch merged into the cache
// together with the number of readings it carried.
func IncrementBatchApplied(readings int) {
	atomic.AddInt64(&batchesApplied, 1)
	recordCounter("batch_applied", readings)
}

// RecordCounter tracks a named event stream for the runtime report.
func RecordCounter(name string, items int) {
	recordCounter(name, items)
}

func recordCounter(name string, items int) {
	v, _ := counters.LoadOrStore(name, &counterStat{})
	cs := v.(*counterStat)
	atomic.AddInt64(&cs.events, 1)
	atomic.AddInt64(&cs.items, int64(items))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and counter statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(_ context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)

	counterData := map[string]map[string]int64{}
	counters.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*counterStat)
		counterData[name] = map[string]int64{
			"events": atomic.LoadInt64(&cs.events),
			"items":  atomic.LoadInt64(&cs.items),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_poller":   atomic.LoadInt64(&errorsPoller),
		"errors_upstream": atomic.LoadInt64(&errorsUpstream),
		"warns_poller":    atomic.LoadInt64(&warnsPoller),
		"warns_upstream":  atomic.LoadInt64(&warnsUpstream),
		"poll_ticks":      atomic.LoadInt64(&pollTicks),
		"batches_applied": atomic.LoadInt64(&batchesApplied),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"counters":        counterData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
