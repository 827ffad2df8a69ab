package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"entropid/internal/config"
	"entropid/internal/session"
)

// runSessions implements "entropid sessions list", reading the SQLite
// catalogue that analyze --session updates on every saved run.
func runSessions(args []string, cfg *config.Config) int {
	if len(args) == 0 || args[0] != "list" {
		fmt.Fprintln(os.Stderr, "entropid: usage: entropid sessions list [--limit N] [--json]")
		return 1
	}
	fs := flag.NewFlagSet("sessions list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum sessions to list, most recent first")
	asJSON := fs.Bool("json", false, "emit JSON")
	_ = fs.Parse(args[1:])

	idx, err := session.OpenIndex(cfg.SessionIndexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: open session index: %v\n", err)
		return 1
	}
	defer idx.Close()

	summaries, err := idx.ListSessions(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entropid: list sessions: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return jsonExit(enc.Encode(summaries))
	}

	for _, s := range summaries {
		fmt.Printf("%-28s %-12s started=%s sources=%d raw_bytes=%d out_bytes=%d\n",
			s.SessionID, s.Conditioning, s.StartedAt.Format("2006-01-02T15:04:05Z"),
			s.SourceCount, s.TotalRawBytes, s.TotalOutBytes)
	}
	if len(summaries) == 0 {
		fmt.Println("entropid: no sessions recorded yet")
	}
	return 0
}
