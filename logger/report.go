package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type sourceStat struct {
	requests int64
	bytes    int64
}

type componentStat struct {
	warns  int64
	errors int64
}

var (
	refreshes  int64
	sources    sync.Map // map[string]*sourceStat
	components sync.Map // map[string]*componentStat
)

func componentStats(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStats(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStats(component).errors, 1)
}

// IncrementSourceRead counts one response of size bytes from an external source.
func IncrementSourceRead(source string, size int) {
	v, _ := sources.LoadOrStore(source, &sourceStat{})
	st := v.(*sourceStat)
	atomic.AddInt64(&st.requests, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// IncrementRefresh counts one completed position refresh.
func IncrementRefresh() {
	atomic.AddInt64(&refreshes, 1)
}

// StartReport begins periodic logging of runtime and source statistics
// until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	log.WithComponent("report").WithFields(reportFields()).Info("runtime report")
}

func reportFields() Fields {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	netStats, _ := gnet.IOCounters(false)

	sourceData := map[string]map[string]int64{}
	sources.Range(func(k, v any) bool {
		st := v.(*sourceStat)
		sourceData[k.(string)] = map[string]int64{
			"requests": atomic.LoadInt64(&st.requests),
			"bytes":    atomic.LoadInt64(&st.bytes),
		}
		return true
	})

	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		st := v.(*componentStat)
		componentData[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&st.warns),
			"errors": atomic.LoadInt64(&st.errors),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	var memoryMB int64
	if memStats != nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	return Fields{
		"refreshes":      atomic.LoadInt64(&refreshes),
		"sources":        sourceData,
		"components":     componentData,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      memoryMB,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}
}
