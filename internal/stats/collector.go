package stats

import (
	"time"

	"kuner/internal/audit"
)

// Stats is the aggregated view of the request log served by /api/stats.
type Stats struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Requests      RequestStats    `json:"requests"`
	Entities      EntityStats     `json:"entities"`
	Latency       LatencyStats    `json:"latency"`
	Recent        []RecentRequest `json:"recent,omitempty"`
}

type RequestStats struct {
	Total       int     `json:"total"`
	Errors      int     `json:"errors"`
	PerMinute   float64 `json:"per_minute"`
	Last5Minute []int   `json:"last_5_minute"`
}

type EntityStats struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label"`
}

type LatencyStats struct {
	TokenizeMs float64 `json:"tokenize_ms"`
	InferMs    float64 `json:"infer_ms"`
	TotalMs    float64 `json:"total_ms"`
}

type RecentRequest struct {
	Timestamp string         `json:"timestamp"`
	TextBytes int            `json:"text_bytes"`
	Entities  int            `json:"entities"`
	ByLabel   map[string]int `json:"by_label,omitempty"`
	Status    string         `json:"status"`
	TotalMs   float64        `json:"total_ms"`
}

type Options struct {
	Now     time.Time
	Status  string
	Uptime  time.Duration
	RecentN int
}

func CollectFromEntries(entries []audit.Entry, opts Options) Stats {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	recentN := opts.RecentN
	if recentN <= 0 {
		recentN = 20
	}

	out := Stats{
		Status:        opts.Status,
		UptimeSeconds: int64(opts.Uptime.Seconds()),
		Entities:      EntityStats{ByLabel: map[string]int{}},
		Requests:      RequestStats{Last5Minute: make([]int, 5)},
	}
	if out.Status == "" {
		out.Status = "stopped"
	}

	var tokenizeSum, inferSum, totalSum float64
	var tokenizeCount, inferCount, totalCount int
	recent := make([]RecentRequest, 0, len(entries))

	for _, e := range entries {
		out.Requests.Total++
		if e.Status != "ok" {
			out.Requests.Errors++
		}

		out.Entities.Total += e.Entities
		for label, n := range e.ByLabel {
			out.Entities.ByLabel[label] += n
		}

		if e.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				delta := now.Sub(ts)
				if delta >= 0 && delta < 5*time.Minute {
					idx := int(delta / time.Minute)
					out.Requests.Last5Minute[4-idx]++
				}
			}
		}

		if e.TokenizeMs > 0 {
			tokenizeSum += e.TokenizeMs
			tokenizeCount++
		}
		if e.InferMs > 0 {
			inferSum += e.InferMs
			inferCount++
		}
		if e.TotalMs > 0 {
			totalSum += e.TotalMs
			totalCount++
		}

		recent = append(recent, RecentRequest{
			Timestamp: e.Timestamp,
			TextBytes: e.TextBytes,
			Entities:  e.Entities,
			ByLabel:   e.ByLabel,
			Status:    e.Status,
			TotalMs:   e.TotalMs,
		})
	}

	sum5 := 0
	for _, n := range out.Requests.Last5Minute {
		sum5 += n
	}
	out.Requests.PerMinute = float64(sum5) / 5

	if tokenizeCount > 0 {
		out.Latency.TokenizeMs = tokenizeSum / float64(tokenizeCount)
	}
	if inferCount > 0 {
		out.Latency.InferMs = inferSum / float64(inferCount)
	}
	if totalCount > 0 {
		out.Latency.TotalMs = totalSum / float64(totalCount)
	}

	for i := len(recent) - 1; i >= 0 && len(out.Recent) < recentN; i-- {
		out.Recent = append(out.Recent, recent[i])
	}
	return out
}
