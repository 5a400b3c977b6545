package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	resp := map[string]any{"status": "ok"}

	database := "unknown"
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("health: database ping failed")
			database = "error"
			resp["status"] = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			database = "ok"
		}
	}
	resp["database"] = database

	if a.Poller != nil {
		poller := map[string]any{"state": a.Poller.State()}
		if last := a.Poller.LastTick(); !last.IsZero() {
			poller["last_tick_at"] = last
		}
		resp["poller"] = poller
	} else {
		resp["poller"] = map[string]any{"state": "disabled"}
	}

	a.json(w, code, resp)
}
