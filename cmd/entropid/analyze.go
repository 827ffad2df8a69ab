package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entropid/internal/analysis"
	"entropid/internal/battery"
	"entropid/internal/conditioning"
	"entropid/internal/config"
	"entropid/internal/logging"
	"entropid/internal/metrics"
	"entropid/internal/minentropy"
	"entropid/internal/quantum"
	"entropid/internal/session"
	"entropid/internal/source"
	"entropid/internal/telemetry"
)

type standardReport struct {
	Sources             []analysis.SourceAnalysis    `json:"sources"`
	CrossCorrelation    []analysis.CorrelationPair   `json:"cross_correlation,omitempty"`
	MinEntropy          map[string]minentropy.Report `json:"min_entropy,omitempty"`
	Battery             map[string][]battery.Result  `json:"battery,omitempty"`
	AvalancheDiagnostic map[string]battery.Result    `json:"avalanche_diagnostic,omitempty"`
}

type experimentalReport struct {
	QuantumProxyV3  *quantumSection           `json:"quantum_proxy_v3,omitempty"`
	TelemetryWindow *telemetry.WindowReport   `json:"telemetry_window,omitempty"`
}

type quantumSection struct {
	Report quantum.BatchReport `json:"report"`
}

type analyzeReport struct {
	Standard     standardReport      `json:"standard"`
	Experimental *experimentalReport `json:"experimental,omitempty"`
}

func runAnalyze(args []string, cfg *config.Config, reg *source.Registry, logger *logging.Logger) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	sourcesFlag := fs.String("sources", "", "comma-separated source name filter (default: all available)")
	conditioningFlag := fs.String("conditioning", cfg.DefaultConditioning, "raw|von_neumann|sha256")
	samples := fs.Int("samples", 8192, "bytes to collect per source")
	withCrossCorr := fs.Bool("cross-correlation", true, "include cross-source correlation matrix")
	withQuantum := fs.Bool("quantum", false, "include the quantum/classical contribution proxy v3 report")
	withBattery := fs.Bool("battery", false, "include the 31-test NIST-style statistical battery per source")
	withTelemetry := fs.Bool("telemetry", false, "include a telemetry window report spanning the collection")
	asJSON := fs.Bool("json", false, "emit JSON")
	timeoutSec := fs.Int("timeout", cfg.CollectTimeoutSeconds, "per-round collection timeout in seconds")
	saveSession := fs.Bool("session", false, "persist this run as a session directory under the configured session dir")
	tagsFile := fs.String("tags-file", "", "YAML file of free-form tags to attach to the saved session (requires --session)")
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

	var startSnap telemetry.Snapshot
	if *withTelemetry {
		startSnap = telemetry.Collect()
	}

	var sessionWriter *session.Writer
	if *saveSession {
		id := "analyze-" + time.Now().UTC().Format("20060102T150405Z")
		w, err := session.Open(filepath.Join(cfg.SessionDir, id), id, mode.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "entropid: open session: %v\n", err)
			return 1
		}
		if *tagsFile != "" {
			tags, err := session.LoadTagsFile(*tagsFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "entropid: load tags file: %v\n", err)
				return 1
			}
			w.SetTags(tags)
		}
		sessionWriter = w
	}

	streams := make([]analysis.NamedStream, 0, len(active))
	sourceAnalyses := make([]analysis.SourceAnalysis, 0, len(active))
	minEntropies := make(map[string]minentropy.Report, len(active))
	batteryResults := make(map[string][]battery.Result, len(active))
	avalancheDiagnostics := make(map[string]battery.Result, len(active))

	for round, s := range active {
		info := s.Info()
		name := info.Name
		p.CollectEnabled(ctx, timeout, []string{name})
		data := p.GetSourceBytes(ctx, name, *samples, mode)
		sa := analysis.FullAnalysis(name, data)
		sourceAnalyses = append(sourceAnalyses, sa)
		me := minentropy.Estimate(data)
		minEntropies[name] = me
		streams = append(streams, analysis.NamedStream{Name: name, Bytes: data})
		if *withBattery {
			batteryResults[name] = battery.RunAll(data)
			avalancheDiagnostics[name] = battery.Blake2bAvalancheDiagnostic(data)
		}
		if sessionWriter != nil {
			if err := sessionWriter.RecordSample(round+1, session.SampleRow{
				Round:          round + 1,
				SourceName:     name,
				Category:       info.Category.String(),
				RawBytes:       len(data),
				ShannonBits:    me.Shannon,
				MinEntropyBits: me.MinEntropy,
				Healthy:        len(data) > 0,
				CollectedAt:    time.Now(),
			}, data); err != nil {
				logger.Warn("session record failed", "source", name, "error", err)
			}
			sessionWriter.RecordOutputBytes(len(data))
		}
		logger.Info("collection round complete", "source", name, "bytes", len(data))
	}

	if sessionWriter != nil {
		if err := sessionWriter.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "entropid: close session: %v\n", err)
		} else if idx, err := session.OpenIndex(cfg.SessionIndexPath); err != nil {
			logger.Warn("session index not updated", "error", err)
		} else {
			if err := idx.Record(sessionWriter.Meta(), sessionWriter.Samples()); err != nil {
				logger.Warn("session index record failed", "error", err)
			} else {
				metrics.GetMetrics().SessionSaved()
			}
			idx.Close()
			logger.Info("session saved", "session_id", sessionWriter.Meta().SessionID, "dir", cfg.SessionDir)
		}
	}

	report := analyzeReport{Standard: standardReport{
		Sources:    sourceAnalyses,
		MinEntropy: minEntropies,
	}}
	if *withBattery {
		report.Standard.Battery = batteryResults
		report.Standard.AvalancheDiagnostic = avalancheDiagnostics
	}
	if *withCrossCorr {
		report.Standard.CrossCorrelation = analysis.CrossCorrelationMatrix(streams)
	}

	if *withQuantum || *withTelemetry {
		report.Experimental = &experimentalReport{}
	}
	if *withQuantum {
		inputs := make([]quantum.SourceInput, 0, len(active))
		for _, s := range active {
			info := s.Info()
			name := info.Name
			sa := findAnalysis(sourceAnalyses, name)
			me := minEntropies[name]
			inputs = append(inputs, quantum.SourceInput{
				Name:              name,
				Category:          info.Category.String(),
				MinEntropyBits:    me.MinEntropy,
				QualityFactor:     quantum.QualityFactor(sa),
				StressSensitivity: 0,
				Analysis:          sa,
			})
		}
		qcfg := quantum.DefaultAssessmentConfig()
		qcfg.BootstrapRounds = cfg.BootstrapRounds
		qcfg.BootstrapWindows = cfg.BootstrapWindows
		qcfg.CouplingFDRAlpha = cfg.CouplingFDRAlpha
		batchReport := quantum.AssessBatchFromStreams(inputs, streams, qcfg, 64)
		if *withTelemetry {
			endSnap := telemetry.Collect()
			window := telemetry.BuildWindow(startSnap, endSnap)
			batchReport = quantum.ApplyTelemetryConfound(batchReport, &window, quantum.DefaultTelemetryConfoundConfig())
			report.Experimental.TelemetryWindow = &window
		}
		report.Experimental.QuantumProxyV3 = &quantumSection{Report: batchReport}
	} else if *withTelemetry {
		endSnap := telemetry.Collect()
		window := telemetry.BuildWindow(startSnap, endSnap)
		report.Experimental.TelemetryWindow = &window
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return jsonExit(enc.Encode(report))
	}

	printAnalyzeText(report)
	return 0
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func filterSources(all []source.EntropySource, names []string) []source.EntropySource {
	if len(names) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	out := make([]source.EntropySource, 0, len(all))
	for _, s := range all {
		if allowed[s.Info().Name] {
			out = append(out, s)
		}
	}
	return out
}

func findAnalysis(all []analysis.SourceAnalysis, name string) analysis.SourceAnalysis {
	for _, a := range all {
		if a.Name == name {
			return a
		}
	}
	return analysis.SourceAnalysis{Name: name}
}

func printAnalyzeText(r analyzeReport) {
	for _, sa := range r.Standard.Sources {
		me := r.Standard.MinEntropy[sa.Name]
		fmt.Printf("%-24s shannon=%.3f min_entropy=%.3f mcv_p_upper=%.4f\n",
			sa.Name, me.Shannon, me.MinEntropy, me.MCVPUpper)
	}
	if len(r.Standard.CrossCorrelation) > 0 {
		fmt.Println("\ncross-correlation:")
		for _, pair := range r.Standard.CrossCorrelation {
			flag := ""
			if pair.Flagged {
				flag = " [flagged]"
			}
			fmt.Printf("  %s <-> %s  r=%.4f%s\n", pair.A, pair.B, pair.R, flag)
		}
	}
	if r.Experimental != nil && r.Experimental.QuantumProxyV3 != nil {
		agg := r.Experimental.QuantumProxyV3.Report.Aggregate
		fmt.Printf("\nquantum/classical: quantum=%.3f bits [%.3f, %.3f]  classical=%.3f bits\n",
			agg.QuantumBits, agg.QuantumBitsCILow, agg.QuantumBitsCIHigh, agg.ClassicalBits)
	}
}
