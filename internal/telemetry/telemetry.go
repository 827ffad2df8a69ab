// Package telemetry collects best-effort, point-in-time host state snapshots
// and derives windowed delta reports between two snapshots. A probe that
// cannot be read on the running host is simply absent from the snapshot;
// the collector never invents values.
package telemetry

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	ModelID      = "host_telemetry_v1"
	ModelVersion = 1
)

// Metric is one probed value.
type Metric struct {
	Domain string
	Name   string
	Value  float64
	Unit   string
	Source string
}

// Key identifies a metric across snapshots for windowing.
type Key struct {
	Domain, Name, Unit, Source string
}

func (m Metric) Key() Key {
	return Key{m.Domain, m.Name, m.Unit, m.Source}
}

// Snapshot is a point-in-time host state capture.
type Snapshot struct {
	ModelID         string
	ModelVersion    int
	CollectedUnixMs int64
	OS              string
	Arch            string
	CPUCount        int
	LoadAvg1m       *float64
	LoadAvg5m       *float64
	LoadAvg15m      *float64
	Metrics         []Metric
}

// Collect captures a best-effort snapshot of the running host. Metrics
// collected: memory (Go runtime heap) and scheduling (goroutine count) on
// every platform, plus thermal (thermal_zone0 temperature) on Linux when
// sysfs exposes it; the load averages come from /proc/loadavg on Linux only.
// No frequency, voltage, current, power, cooling, network, disk, entropy or
// vm metrics are collected.
func Collect() Snapshot {
	snap := Snapshot{
		ModelID:         ModelID,
		ModelVersion:    ModelVersion,
		CollectedUnixMs: time.Now().UnixMilli(),
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		CPUCount:        runtime.NumCPU(),
	}

	if l1, l5, l15, ok := readLoadAvg(); ok {
		snap.LoadAvg1m = &l1
		snap.LoadAvg5m = &l5
		snap.LoadAvg15m = &l15
	}

	snap.Metrics = append(snap.Metrics, memStats()...)
	snap.Metrics = append(snap.Metrics, schedulingStats()...)
	if runtime.GOOS == "linux" {
		snap.Metrics = append(snap.Metrics, linuxThermalStats()...)
	}

	return snap
}

func memStats() []Metric {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return []Metric{
		{Domain: "memory", Name: "heap_alloc_bytes", Value: float64(m.HeapAlloc), Unit: "bytes", Source: "runtime"},
		{Domain: "memory", Name: "heap_sys_bytes", Value: float64(m.HeapSys), Unit: "bytes", Source: "runtime"},
	}
}

func schedulingStats() []Metric {
	return []Metric{
		{Domain: "scheduling", Name: "goroutine_count", Value: float64(runtime.NumGoroutine()), Unit: "count", Source: "runtime"},
	}
}

func readLoadAvg() (l1, l5, l15 float64, ok bool) {
	if runtime.GOOS != "linux" {
		return 0, 0, 0, false
	}
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0, false
	}
	l1, err1 := strconv.ParseFloat(fields[0], 64)
	l5, err5 := strconv.ParseFloat(fields[1], 64)
	l15, err15 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err5 != nil || err15 != nil {
		return 0, 0, 0, false
	}
	return l1, l5, l15, true
}

func linuxThermalStats() []Metric {
	var metrics []Metric
	f, err := os.Open("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return nil
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		if milliC, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64); err == nil {
			metrics = append(metrics, Metric{
				Domain: "thermal", Name: "zone0_celsius", Value: milliC / 1000.0, Unit: "celsius", Source: "sysfs",
			})
		}
	}
	return metrics
}

// WindowDelta is one (domain,name,unit,source)-keyed delta between a window's
// start and end snapshot.
type WindowDelta struct {
	Domain     string
	Name       string
	Unit       string
	Source     string
	StartValue float64
	EndValue   float64
	DeltaValue float64
}

// WindowReport is the windowed delta report joined on the metric key present
// in both the start and end snapshot.
type WindowReport struct {
	ModelID      string
	ModelVersion int
	ElapsedMs    int64
	Start        Snapshot
	End          Snapshot
	Deltas       []WindowDelta
}

// BuildWindow joins two snapshots on (domain, name, unit, source) and reports
// the delta for every metric present in both.
func BuildWindow(start, end Snapshot) WindowReport {
	startIndex := make(map[Key]float64, len(start.Metrics))
	for _, m := range start.Metrics {
		startIndex[m.Key()] = m.Value
	}

	report := WindowReport{
		ModelID:      ModelID,
		ModelVersion: ModelVersion,
		ElapsedMs:    end.CollectedUnixMs - start.CollectedUnixMs,
		Start:        start,
		End:          end,
	}
	for _, m := range end.Metrics {
		if startVal, ok := startIndex[m.Key()]; ok {
			report.Deltas = append(report.Deltas, WindowDelta{
				Domain: m.Domain, Name: m.Name, Unit: m.Unit, Source: m.Source,
				StartValue: startVal, EndValue: m.Value, DeltaValue: m.Value - startVal,
			})
		}
	}
	return report
}
