package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
)

// Stream event types.
const (
	eventSnapshot     = "snapshot"
	eventConnectivity = "connectivity"
	eventEnd          = "end"
)

// streamUpdates pushes every fetch result to the client as it happens.
// The first event carries the current snapshot.
func (s *Server) streamUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		JSONError(w, &Error{Code: ErrCodeInternalError, Message: "streaming unsupported", Status: http.StatusInternalServerError})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := NewSSEWriter(w, flusher)
	ctx, cancel := context.WithTimeout(r.Context(), s.config.StreamMaxDuration)
	defer cancel()

	updates := s.monitor.Watch(ctx)

	_ = sse.SendRetry(int(s.monitor.Settings.CloudConfig().RefreshIntervalMS))
	if err := s.sendUpdate(sse, s.monitor.Snapshot()); err != nil {
		return
	}

	keepAlive := time.NewTicker(s.config.StreamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				_ = sse.SendEvent(eventEnd, `{"reason":"max_duration"}`)
			}
			return
		case u, ok := <-updates:
			if !ok {
				_ = sse.SendEvent(eventEnd, `{"reason":"shutdown"}`)
				return
			}
			if err := s.sendUpdate(sse, u); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := sse.SendComment("keepalive"); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendUpdate(sse *SSEWriter, u acquisition.Update) error {
	resp := toSnapshotResponse(u, s.monitor.Scheduler.Connected(), nil)
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode stream update", zap.Error(err))
		return err
	}

	event := eventSnapshot
	if u.Err != nil {
		event = eventConnectivity
	}
	if err := sse.SendEvent(event, string(data)); err != nil {
		s.logger.Debug("stream client gone", zap.Error(err))
		return err
	}
	return nil
}
