package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"entropid/internal/conditioning"
	"entropid/internal/config"
	"entropid/internal/logging"
	"entropid/internal/metrics"
	"entropid/internal/minentropy"
	"entropid/internal/source"
)

type benchRow struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Rounds        int     `json:"rounds"`
	BytesPerRound int     `json:"bytes_per_round"`
	MeanShannon   float64 `json:"mean_shannon"`
	MeanMinEntropy float64 `json:"mean_min_entropy"`
	MeanElapsedMs  float64 `json:"mean_elapsed_ms"`
	FailureCount   int     `json:"failure_count"`
}

type benchReport struct {
	Rounds  int        `json:"rounds"`
	Samples int        `json:"samples_per_round"`
	Ranked  []benchRow `json:"ranked"`
}

// runBench profiles every matched source over several rounds and ranks them
// by mean min-entropy.
func runBench(args []string, cfg *config.Config, reg *source.Registry, logger *logging.Logger) int {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	sourcesFlag := fs.String("sources", "", "comma-separated source name filter (default: all available)")
	rounds := fs.Int("rounds", 5, "benchmark rounds per source")
	samples := fs.Int("samples", 2048, "bytes requested per round")
	conditioningFlag := fs.String("conditioning", cfg.DefaultConditioning, "raw|von_neumann|sha256")
	asJSON := fs.Bool("json", false, "emit JSON")
	timeoutSec := fs.Int("timeout", cfg.CollectTimeoutSeconds, "per-round collection timeout in seconds")
	_ = fs.Parse(args)

	mode, err := conditioning.ParseMode(*conditioningFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: %v\n", err)
		return 1
	}

	names := splitNames(*sourcesFlag)
	p, filter := newPool(reg, cfg, names)
	active := filterSources(reg.Active(), filter)
	if len(active) == 0 {
		fmt.Fprintln(os.Stderr, "entropid: no sources matched filter")
		return 1
	}

	ctx := context.Background()
	timeout := time.Duration(*timeoutSec) * time.Second
	m := metrics.GetMetrics()

	rows := make([]benchRow, 0, len(active))
	for _, s := range active {
		info := s.Info()
		var sumShannon, sumMin, sumElapsed float64
		failures := 0
		for i := 0; i < *rounds; i++ {
			start := time.Now()
			p.CollectEnabled(ctx, timeout, []string{info.Name})
			data := p.GetSourceBytes(ctx, info.Name, *samples, mode)
			elapsed := time.Since(start)
			if len(data) == 0 {
				failures++
				m.RecordCollection(elapsed, 0, 1)
				continue
			}
			m.RecordCollection(elapsed, len(data), 0)
			minBits := minentropy.Quick(data)
			sumShannon += minentropy.QuickShannon(data)
			sumMin += minBits
			sumElapsed += float64(elapsed.Milliseconds())
			m.RecordSourceMinEntropy(minBits)
		}
		n := float64(*rounds)
		rows = append(rows, benchRow{
			Name:           info.Name,
			Category:       info.Category.String(),
			Rounds:         *rounds,
			BytesPerRound:  *samples,
			MeanShannon:    sumShannon / n,
			MeanMinEntropy: sumMin / n,
			MeanElapsedMs:  sumElapsed / n,
			FailureCount:   failures,
		})
		logger.Info("bench round complete", "source", info.Name, "rounds", *rounds, "failures", failures)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MeanMinEntropy > rows[j].MeanMinEntropy
	})

	health := p.Health()
	logger.Info("bench health summary", "healthy", health.HealthyCount, "total", health.Total, "raw_bytes", health.RawBytes)

	report := benchReport{Rounds: *rounds, Samples: *samples, Ranked: rows}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return jsonExit(enc.Encode(report))
	}

	for i, r := range report.Ranked {
		fmt.Printf("%2d. %-24s min_entropy=%.3f shannon=%.3f elapsed=%.1fms failures=%d\n",
			i+1, r.Name, r.MeanMinEntropy, r.MeanShannon, r.MeanElapsedMs, r.FailureCount)
	}
	return 0
}
