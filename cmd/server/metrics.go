package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/session"
	"genoa.ai/internal/transport/api"
)

type metricsSource struct {
	api      *api.Server
	trail    *audit.Trail
	sessions *session.Manager
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(w io.Writer, src metricsSource) {
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	if src.api != nil {
		s := src.api.Stats()
		fmt.Fprintf(w, "# HELP genoa_api_requests_total API requests received.\n")
		fmt.Fprintf(w, "# TYPE genoa_api_requests_total counter\n")
		fmt.Fprintf(w, "genoa_api_requests_total %d\n", s.Requests.Load())

		fmt.Fprintf(w, "# HELP genoa_api_responses_total API requests that did not succeed, by outcome.\n")
		fmt.Fprintf(w, "# TYPE genoa_api_responses_total counter\n")
		fmt.Fprintf(w, "genoa_api_responses_total{outcome=%q} %d\n", "rejected", s.Rejected.Load())
		fmt.Fprintf(w, "genoa_api_responses_total{outcome=%q} %d\n", "denied", s.Denied.Load())
		fmt.Fprintf(w, "genoa_api_responses_total{outcome=%q} %d\n", "conflict", s.Conflicts.Load())
		fmt.Fprintf(w, "genoa_api_responses_total{outcome=%q} %d\n", "failed", s.Failed.Load())

		fmt.Fprintf(w, "# HELP genoa_queued_sessions Sessions with requests in flight.\n")
		fmt.Fprintf(w, "# TYPE genoa_queued_sessions gauge\n")
		fmt.Fprintf(w, "genoa_queued_sessions %d\n", src.api.QueuedSessions())
	}

	if src.sessions != nil {
		fmt.Fprintf(w, "# HELP genoa_cached_sessions Authenticated sessions held in memory.\n")
		fmt.Fprintf(w, "# TYPE genoa_cached_sessions gauge\n")
		fmt.Fprintf(w, "genoa_cached_sessions %d\n", src.sessions.Cached())
	}

	if src.trail != nil {
		counts := src.trail.Counts()
		actions := make([]string, 0, len(counts))
		for a := range counts {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		fmt.Fprintf(w, "# HELP genoa_actions_total Committed player actions.\n")
		fmt.Fprintf(w, "# TYPE genoa_actions_total counter\n")
		for _, a := range actions {
			fmt.Fprintf(w, "genoa_actions_total{action=%q} %d\n", a, counts[a])
		}
	}
}
