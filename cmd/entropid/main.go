// entropid is the command-line surface over the entropy harvesting and
// quality-assessment engine: analyze (per-source statistical and quantum
// proxy reports), bench (ranked multi-round benchmark), stream (continuous
// conditioned output), and scan (source probe, no collection).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"entropid/internal/config"
	"entropid/internal/logging"
	"entropid/internal/pool"
	"entropid/internal/quantum"
	"entropid/internal/reload"
	"entropid/internal/source"
	"entropid/internal/sources"
)

var (
	configPath = flag.String("config", "", "path to config.toml")
)

func usage() {
	fmt.Fprintln(os.Stderr, `entropid - entropy harvesting and quality-assessment engine

Usage:
  entropid analyze [--sources a,b,c] [--conditioning raw|von_neumann|sha256] [--samples N] [--battery] [--quantum] [--json]
  entropid bench [--rounds N] [--samples N] [--json]
  entropid stream [--conditioning raw|von_neumann|sha256] [--rate BYTES/S] [--budget N] [--format raw|hex|base64]
  entropid scan [--json]
  entropid sessions list [--limit N] [--json]

Flags:`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "entropid: prepare directories: %v\n", err)
		os.Exit(1)
	}
	logCfg := logging.DefaultConfig()
	logCfg.Output = "file"
	logCfg.FilePath = cfg.LogPath
	logCfg.Format = logging.FormatJSON
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: open log: %v\n", err)
		os.Exit(1)
	}

	reg := source.NewRegistry()
	for _, ctor := range sources.All() {
		reg.Register(ctor)
	}

	// The watcher, if started, lives for the process's lifetime; os.Exit
	// below reclaims its fsnotify handle along with everything else.
	startCalibrationWatch(cfg, logger)

	var code int
	switch cmd {
	case "analyze":
		code = runAnalyze(args, cfg, reg, logger)
	case "bench":
		code = runBench(args, cfg, reg, logger)
	case "stream":
		code = runStream(args, cfg, reg, logger)
	case "scan":
		code = runScan(args, reg)
	case "sessions":
		code = runSessions(args, cfg)
	case "-h", "--help", "help":
		usage()
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "entropid: unknown command %q\n", cmd)
		usage()
		code = 1
	}
	os.Exit(code)
}

// newPool builds a pool over every registered, platform-available source and
// returns it with the name filter callers apply themselves: explicit if
// non-empty, otherwise cfg.EnabledSources (empty means everything). The pool
// itself is not restricted by the filter.
func newPool(reg *source.Registry, cfg *config.Config, explicit []string) (*pool.Pool, []string) {
	p := pool.Auto(reg)
	names := explicit
	if len(names) == 0 {
		names = cfg.EnabledSources
	}
	return p, names
}

// startCalibrationWatch loads cfg.CalibrationPath (if set), installs it as
// the active quantum calibration, and starts a background watcher that
// reloads and re-validates the file whenever it settles after a write.
// Returns nil if no calibration path is configured.
func startCalibrationWatch(cfg *config.Config, logger *logging.Logger) *reload.Watcher {
	if cfg.CalibrationPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.CalibrationPath); err != nil {
		logger.Warn("calibration file not found, using seeded default", "path", cfg.CalibrationPath)
		return nil
	}
	if cal, err := quantum.LoadCalibrationFile(cfg.CalibrationPath); err != nil {
		logger.Warn("calibration file not loaded, using seeded default", "path", cfg.CalibrationPath, "error", err)
	} else {
		quantum.SetGlobalCalibration(cal)
		logger.Info("calibration loaded", "path", cfg.CalibrationPath)
	}

	watcher, err := reload.New([]string{cfg.CalibrationPath}, 2*time.Second)
	if err != nil {
		logger.Warn("calibration watcher not started", "error", err)
		return nil
	}
	if err := watcher.Start(); err != nil {
		logger.Warn("calibration watcher not started", "error", err)
		return nil
	}

	go func() {
		for {
			select {
			case change, ok := <-watcher.Changes():
				if !ok {
					return
				}
				cal, err := quantum.LoadCalibrationFile(change.Path)
				if err != nil {
					logger.Warn("calibration reload rejected", "path", change.Path, "error", err)
					continue
				}
				quantum.SetGlobalCalibration(cal)
				logger.Info("calibration reloaded", "path", change.Path, "size", change.Size)
			case err, ok := <-watcher.Errors():
				if !ok {
					return
				}
				logger.Warn("calibration watcher error", "error", err)
			}
		}
	}()
	return watcher
}
