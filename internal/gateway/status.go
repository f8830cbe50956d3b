package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// BotStatus is one bot's entry in the status report.
type BotStatus struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	QueueDepth int            `json:"queue_depth"`
	Stats      map[string]int `json:"stats,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime  int64           `json:"uptime_seconds"`
	Metrics MetricsSnapshot `json:"metrics"`
	Modules []string        `json:"modules"`
	Bots    []BotStatus     `json:"bots"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:  int64(time.Since(g.startedAt) / time.Second),
			Metrics: g.metrics.Snapshot(),
			Modules: []string{},
			Bots:    []BotStatus{},
		}
		if g.appCtx != nil {
			if ids, ok := g.appCtx.Service("app.modules"); ok {
				if list, ok := ids.([]string); ok {
					resp.Modules = list
				}
			}
		}

		for _, b := range g.bots.list() {
			st := BotStatus{
				ID:         b.id,
				Username:   b.Username(),
				QueueDepth: b.QueueDepth(),
			}
			stats, err := b.Stats(r.Context())
			if err != nil {
				st.Error = err.Error()
			} else {
				st.Stats = stats
			}
			resp.Bots = append(resp.Bots, st)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
