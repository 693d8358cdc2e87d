package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"reportdb/pkg/logger"
	"reportdb/pkg/store"
)

// inspect dumps report action collections straight from a Pebble
// directory, for offline debugging.
func main() {
	var p string
	var report string
	flag.StringVar(&p, "db", "", "pebble db path")
	flag.StringVar(&report, "report", "", "dump a single report id")
	flag.Parse()
	if p == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init()
	if err := store.Open(p); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", p, err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListActionKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, k := range keys {
		id := store.ReportIDFromKey(k)
		if report != "" && id != report {
			continue
		}
		coll, err := store.GetActions(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", k, err)
			continue
		}
		fmt.Fprintf(os.Stdout, "report %s (%d actions)\n", id, len(coll))
		_ = enc.Encode(coll)
	}
}
