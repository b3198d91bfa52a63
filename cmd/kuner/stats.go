package main

import (
	"flag"
	"fmt"
	"sort"

	"kuner/internal/audit"
	"kuner/internal/stats"
)

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	logPath := fs.String("log", "", "request log path, overrides config")
	recentN := fs.Int("recent", 5, "number of recent requests to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *logPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Logging.RequestLog
	}

	entries, err := audit.ParseFile(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No requests logged yet.")
		return nil
	}

	s := stats.CollectFromEntries(entries, stats.Options{RecentN: *recentN})

	fmt.Printf("Requests:  %d total, %d errors (%.1f/min over last 5 min)\n",
		s.Requests.Total, s.Requests.Errors, s.Requests.PerMinute)
	fmt.Printf("Entities:  %d total\n", s.Entities.Total)
	labels := make([]string, 0, len(s.Entities.ByLabel))
	for label := range s.Entities.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("  %-4s %d\n", label, s.Entities.ByLabel[label])
	}
	fmt.Printf("Latency:   tokenize %.1fms, infer %.1fms, total %.1fms\n",
		s.Latency.TokenizeMs, s.Latency.InferMs, s.Latency.TotalMs)

	if len(s.Recent) > 0 {
		fmt.Println("Recent:")
		for _, r := range s.Recent {
			fmt.Printf("  %s  %4dB  %2d entities  %-11s %.1fms\n",
				r.Timestamp, r.TextBytes, r.Entities, r.Status, r.TotalMs)
		}
	}
	return nil
}
