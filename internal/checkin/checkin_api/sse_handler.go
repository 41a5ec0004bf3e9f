package checkin_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-checkin/internal/feed"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/stats"
)

// SSEHandler streams live check-in activity and stats snapshots to monitoring
// displays over Server-Sent Events.
type SSEHandler struct {
	Logger     *logger.Logger
	Aggregator *stats.Aggregator
	Feed       *feed.Feed
}

func NewSSEHandler(log *logger.Logger, aggregator *stats.Aggregator, f *feed.Feed) *SSEHandler {
	return &SSEHandler{Logger: log, Aggregator: aggregator, Feed: f}
}

// HandleEventStream pushes every check-in event to the connected monitor.
func (h *SSEHandler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Feed.Subscribe(ctx)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.Logger.Info("SSE", "Monitor connected to check-in event stream")

	for {
		select {
		case event, open := <-eventChan:
			if !open {
				return
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize check-in event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", "Monitor disconnected from check-in event stream")
			return
		}
	}
}

// HandleStatsStream pushes a stats snapshot on every change, starting with the
// current one so displays render immediately.
func (h *SSEHandler) HandleStatsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	h.setupSSEHeaders(w)

	ctx := r.Context()
	statsChan := h.Aggregator.Subscribe(ctx)

	if jsonData, err := json.Marshal(h.Aggregator.Snapshot()); err == nil {
		fmt.Fprintf(w, "event: stats\ndata: %s\n\n", jsonData)
		flusher.Flush()
	}

	h.Logger.Info("SSE", "Monitor connected to stats stream")

	for {
		select {
		case snapshot, open := <-statsChan:
			if !open {
				return
			}
			jsonData, err := json.Marshal(snapshot)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize stats snapshot: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: stats\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", "Monitor disconnected from stats stream")
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
