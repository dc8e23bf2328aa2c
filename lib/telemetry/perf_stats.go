package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var perfMeter = otel.Meter("kadai.perf_stats")
var cpuGauge, _ = perfMeter.Float64Gauge("cpu_usage")
var memoryGauge, _ = perfMeter.Int64Gauge("allocated_mb")
var goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")
var browserGauge, _ = perfMeter.Int64Gauge("browser_processes")
var browserRssGauge, _ = perfMeter.Int64Gauge("browser_rss_mb")

var browserNames = []string{"chrome", "chromium", "headless_shell"}

func isBrowser(name string) bool {
	name = strings.ToLower(name)
	for _, b := range browserNames {
		if strings.Contains(name, b) {
			return true
		}
	}
	return false
}

// browserStats walks the process tree below self and sums up every
// browser process found. A crashed crawl that leaks its chrome shows up
// here as a count that never returns to zero.
func browserStats(ctx context.Context, self *process.Process) (count int64, rssMb int64) {
	queue := []*process.Process{self}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			// gopsutil reports "no children" as an error
			continue
		}
		for _, child := range children {
			queue = append(queue, child)
			name, err := child.NameWithContext(ctx)
			if err != nil || !isBrowser(name) {
				continue
			}
			count++
			mem, err := child.MemoryInfoWithContext(ctx)
			if err == nil {
				rssMb += int64(mem.RSS / 1_000_000)
			}
		}
	}
	return count, rssMb
}

// InstrumentPerfStats records process gauges every 30s until ctx is done,
// including the headless browsers spawned for WebClass crawls.
func InstrumentPerfStats(ctx context.Context) {
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.WarnContext(ctx, "browser process stats unavailable", "err", err)
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.PercentWithContext(ctx, 0, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.WarnContext(ctx, "failed to read cpu usage", "err", err)
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				if self != nil {
					count, rss := browserStats(ctx, self)
					browserGauge.Record(ctx, count)
					browserRssGauge.Record(ctx, rss)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
