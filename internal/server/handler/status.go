package handler

import (
	"context"
	"net/http"
	"time"
)

// Status is the runtime snapshot served at /api/status. Sections that do not
// run in the current mode are left empty.
type Status struct {
	Mode             string         `json:"mode"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	InboxDepth       int            `json:"inbox_depth"`
	Workers          map[string]int `json:"workers"`
	RetryQueues      map[string]int `json:"retry_queues"`
	RetryPending     int            `json:"retry_pending"`
	PoolGroups       int            `json:"pool_groups"`
	DetectorInflight int            `json:"detector_inflight"`
}

// StatusFunc assembles a Status.
type StatusFunc func(ctx context.Context) Status

// StatusHandler serves the pipeline status.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	collect   StatusFunc
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, collect StatusFunc) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, collect: collect}
}

// GetStatus answers with queue depths and pool size.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var s Status
	if h.collect != nil {
		s = h.collect(r.Context())
	}
	s.Mode = h.mode
	s.UptimeSeconds = int64(time.Since(h.startedAt).Seconds())
	writeJSON(w, http.StatusOK, s)
}
