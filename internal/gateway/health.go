package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	aliveText = "Bot is alive!"
	pongText  = "Pong!"
)

// BotHealth is one bot's entry in the health report.
type BotHealth struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	QueueDepth int    `json:"queue_depth"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string      `json:"status"`
	Uptime int64       `json:"uptime_seconds"`
	Bots   []BotHealth `json:"bots"`
}

// handleAlive answers the platform liveness probes on / and /ping.
func handleAlive(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	}
}

// handleHealth returns an http.HandlerFunc for GET /health.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: int64(time.Since(g.startedAt) / time.Second),
			Bots:   []BotHealth{},
		}
		for _, b := range g.bots.list() {
			resp.Bots = append(resp.Bots, BotHealth{
				ID:         b.id,
				Username:   b.Username(),
				QueueDepth: b.QueueDepth(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
