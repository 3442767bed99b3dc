package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamProgress handles GET /api/v1/enterprises/{enterprise}/progress/stream.
// Every broadcast is one "progress" event holding the whole run.
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")
	streamEvents(h, w, r, "progress", h.svc.SubscribeProgress(r.Context(), enterprise))
}

// StreamSyncs handles GET /api/v1/enterprises/{enterprise}/syncs/stream.
// The optional sync_id query parameter narrows the stream to one run.
func (h *Handler) StreamSyncs(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")
	syncID := r.URL.Query().Get("sync_id")
	streamEvents(h, w, r, "sync", h.svc.SubscribeHistory(r.Context(), enterprise, syncID))
}

// streamEvents writes every value of events as a server-sent event until the
// channel closes or the client disconnects. A comment line is sent on every
// heartbeat so idle proxies keep the connection open.
func streamEvents[T any](h *Handler, w http.ResponseWriter, r *http.Request, event string, events <-chan T) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrStreamingUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	h.logger.Debug("Event stream opened", "event", event, "path", r.URL.Path)
	defer h.logger.Debug("Event stream closed", "event", event, "path", r.URL.Path)

	for {
		select {
		case <-r.Context().Done():
			return
		case v, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				h.logger.Error("Failed to encode event", "event", event, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				h.logger.Debug("Event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
