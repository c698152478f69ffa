package container

import (
	"encoding/json"
	"net/http"
	"sort"

	"vol-index-go/analytics"
	"vol-index-go/market"
)

// Status is the JSON body of /status.
type Status struct {
	Env           string                         `json:"env"`
	FeedConnected bool                           `json:"feedConnected"`
	Healthy       bool                           `json:"healthy"`
	HealthError   string                         `json:"healthError,omitempty"`
	Indexes       []market.Snapshot              `json:"indexes"`
	Quantiles     map[string]analytics.Quantiles `json:"quantiles"`
}

// Status collects the current snapshot of every seeded index.
func (c *Container) Status() Status {
	names := c.service.Indexes()
	sort.Strings(names)
	st := Status{
		Env:           c.cfg.Env,
		FeedConnected: c.feed != nil && c.feed.Connected(),
		Healthy:       true,
		Indexes:       make([]market.Snapshot, 0, len(names)),
		Quantiles:     c.tracker.All(),
	}
	for _, name := range names {
		if snap, ok := c.service.Snapshot(name); ok {
			st.Indexes = append(st.Indexes, snap)
		}
	}
	if err := c.lifecycle.CheckHealth(); err != nil {
		st.Healthy = false
		st.HealthError = err.Error()
	}
	return st
}

func (c *Container) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Status()); err != nil {
		c.logger.LogError(err, map[string]interface{}{"component": "status"})
	}
}

func (c *Container) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.lifecycle.CheckHealth(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}
