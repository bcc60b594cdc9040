// internal/handler/pipeline_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/service"
)

// PipelineHandler exposes the scheduler entry points and the event log over HTTP.
type PipelineHandler struct {
	Pipeline *service.Pipeline
	Metrics  *metrics.Collector
	Now      func() time.Time
}

func (h *PipelineHandler) Routes(r chi.Router) {
	r.Post("/ticks/dispatch", h.DispatchTickHandler)
	r.Post("/ticks/health", h.HealthTickHandler)
	r.Get("/summaries/{date}", h.DailySummaryHandler)
	r.Get("/events", h.EventsHandler)
	r.Get("/events/stats", h.EventStatsHandler)
	r.Post("/maintenance/cleanup", h.CleanupHandler)
	r.Get("/healthz", h.HealthzHandler)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *PipelineHandler) clock() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// tickTime reads ?now=RFC3339, defaulting to the wall clock.
func (h *PipelineHandler) tickTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("now")
	if raw == "" {
		return h.clock(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(time.DateOnly, raw)
}

// DispatchTickHandler runs one dispatch tick. A store failure yields 503 so
// the external scheduler can tell the tick did nothing.
func (h *PipelineHandler) DispatchTickHandler(w http.ResponseWriter, r *http.Request) {
	now, err := h.tickTime(r)
	if err != nil {
		http.Error(w, "invalid now: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.Pipeline.RunDispatchTick(r.Context(), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *PipelineHandler) HealthTickHandler(w http.ResponseWriter, r *http.Request) {
	now, err := h.tickTime(r)
	if err != nil {
		http.Error(w, "invalid now: "+err.Error(), http.StatusBadRequest)
		return
	}
	respond(w, http.StatusOK, h.Pipeline.RunHealthCheckTick(r.Context(), now))
}

// DailySummaryHandler returns the summary for {date}; ?send=true also
// dispatches it to the notifier.
func (h *PipelineHandler) DailySummaryHandler(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if send, _ := strconv.ParseBool(r.URL.Query().Get("send")); send {
		summary, sent, err := h.Pipeline.SendDailySummary(r.Context(), date, h.clock())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respond(w, http.StatusOK, map[string]interface{}{
			"summary": summary,
			"sent":    sent,
		})
		return
	}

	summary, err := h.Pipeline.GenerateDailySummary(r.Context(), date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, summary)
}

// EventsHandler lists events for ?date=YYYY-MM-DD or the trailing ?days=N (default 1).
func (h *PipelineHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("date"); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		events, err := h.Pipeline.Events.ByDate(r.Context(), date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respond(w, http.StatusOK, map[string]interface{}{"data": events})
		return
	}

	days := 1
	if raw := q.Get("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = d
	}
	events, err := h.Pipeline.Events.Recent(r.Context(), h.clock(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"data": events})
}

func (h *PipelineHandler) EventStatsHandler(w http.ResponseWriter, r *http.Request) {
	date := h.clock()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = d
	}
	stats, err := h.Pipeline.Events.StatsByDate(r.Context(), date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"date":  date.Format(time.DateOnly),
		"stats": stats,
	})
}

func (h *PipelineHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = d
	}
	removed, err := h.Pipeline.Cleanup(r.Context(), h.clock(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

func (h *PipelineHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
