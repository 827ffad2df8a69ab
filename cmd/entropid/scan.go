package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"entropid/internal/source"
)

type scanRow struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	Platform            string   `json:"platform"`
	Requirements        []string `json:"requirements,omitempty"`
	Available           bool     `json:"available"`
	EntropyRateEstimate float64  `json:"entropy_rate_estimate_bits_per_s"`
	Composite           bool     `json:"composite"`
}

// runScan implements the implicit source-probe verb: print every registered
// source's static metadata and current availability without collecting.
func runScan(args []string, reg *source.Registry) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	_ = fs.Parse(args)

	active := reg.Refresh()
	rows := make([]scanRow, 0, len(active))
	for _, s := range active {
		info := s.Info()
		rows = append(rows, scanRow{
			Name:                info.Name,
			Description:         info.Description,
			Category:            info.Category.String(),
			Platform:            string(info.Platform),
			Requirements:        info.Requirements,
			Available:           s.Available(),
			EntropyRateEstimate: info.EntropyRateEstimate,
			Composite:           info.Composite,
		})
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return jsonExit(enc.Encode(rows))
	}

	for _, r := range rows {
		status := "unavailable"
		if r.Available {
			status = "available"
		}
		fmt.Printf("%-24s %-10s %-12s %8.0f bit/s  %s\n", r.Name, r.Category, status, r.EntropyRateEstimate, r.Description)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "entropid: no sources matched")
		return 1
	}
	return 0
}

func jsonExit(err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: encode json: %v\n", err)
		return 1
	}
	return 0
}
