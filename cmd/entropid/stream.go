package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"entropid/internal/conditioning"
	"entropid/internal/config"
	"entropid/internal/logging"
	"entropid/internal/metrics"
	"entropid/internal/source"
)

// runStream writes continuous conditioned output to stdout, optionally
// rate-limited and budget-bounded.
func runStream(args []string, cfg *config.Config, reg *source.Registry, logger *logging.Logger) int {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	conditioningFlag := fs.String("conditioning", cfg.DefaultConditioning, "raw|von_neumann|sha256")
	format := fs.String("format", "raw", "raw|hex|base64")
	rateBytesPerSec := fs.Int64("rate", 0, "rate limit in bytes/s (0 = unlimited)")
	budget := fs.Int64("budget", 0, "total byte budget to emit before stopping (0 = unlimited)")
	chunkSize := fs.Int("chunk", 256, "bytes requested per collection round")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus/JSON metrics on this address (e.g. 127.0.0.1:9124) while streaming")
	_ = fs.Parse(args)

	mode, err := conditioning.ParseMode(*conditioningFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: %v\n", err)
		return 1
	}
	switch *format {
	case "raw", "hex", "base64":
	default:
		fmt.Fprintf(os.Stderr, "entropid: invalid format %q\n", *format)
		return 1
	}

	p, _ := newPool(reg, cfg, nil)
	ctx := context.Background()
	m := metrics.GetMetrics()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Default().HTTPHandler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics server started", "addr", *metricsAddr)
	}

	var emitted int64
	var lastTick time.Time
	if *rateBytesPerSec > 0 {
		lastTick = time.Now()
	}

	logger.Info("stream started", "conditioning", mode.String(), "format", *format)
	for {
		if *budget > 0 && emitted >= *budget {
			break
		}
		n := *chunkSize
		if *budget > 0 {
			remaining := *budget - emitted
			if int64(n) > remaining {
				n = int(remaining)
			}
		}
		data := p.GetBytes(ctx, n, mode)
		if len(data) == 0 {
			continue
		}
		switch *format {
		case "raw":
			os.Stdout.Write(data)
		case "hex":
			fmt.Fprintln(os.Stdout, hex.EncodeToString(data))
		case "base64":
			fmt.Fprintln(os.Stdout, base64.StdEncoding.EncodeToString(data))
		}
		emitted += int64(len(data))
		m.RecordEmission(len(data))

		if *rateBytesPerSec > 0 {
			elapsed := time.Since(lastTick)
			want := time.Duration(float64(emitted) / float64(*rateBytesPerSec) * float64(time.Second))
			if want > elapsed {
				time.Sleep(want - elapsed)
			}
		}
	}
	logger.Info("stream finished", "bytes_emitted", emitted)
	return 0
}
