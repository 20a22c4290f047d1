package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// SnapshotResponse is the latest evaluated state plus connectivity details.
type SnapshotResponse struct {
	Snapshot  models.SensorSnapshot `json:"snapshot"`
	Connected bool                  `json:"connected"`
	Failures  int                   `json:"failures"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt *time.Time            `json:"updated_at,omitempty"`
}

// SummaryResponse adds display strings to a history summary.
type SummaryResponse struct {
	history.Summary
	AverageText string `json:"average_text"`
	MaxText     string `json:"max_text"`
}

func toSnapshotResponse(u acquisition.Update, connected bool, fetchErr error) SnapshotResponse {
	resp := SnapshotResponse{
		Snapshot:  u.Snapshot,
		Connected: connected,
		Failures:  u.Failures,
	}
	if !u.At.IsZero() {
		at := u.At
		resp.UpdatedAt = &at
	}
	switch {
	case u.Err != nil:
		resp.Error = u.Err.Error()
	case fetchErr != nil:
		resp.Error = fetchErr.Error()
	}
	return resp
}

func toSummaryResponse(s history.Summary) SummaryResponse {
	return SummaryResponse{Summary: s, AverageText: s.AverageText(), MaxText: s.MaxText()}
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	u := s.monitor.Snapshot()
	OK(w, toSnapshotResponse(u, s.monitor.Scheduler.Connected(), nil))
}

// refreshSnapshot fetches immediately. A failed fetch still answers with the
// disconnected snapshot so clients can render it.
func (s *Server) refreshSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	u, err := s.monitor.Refresh(ctx)
	if errors.Is(err, acquisition.ErrFetchInFlight) || errors.Is(err, acquisition.ErrSourceChanged) {
		JSONError(w, FromError(err))
		return
	}
	OK(w, toSnapshotResponse(u, s.monitor.Scheduler.Connected(), err))
}

// getHistory returns retained readings, optionally for one sensor and
// limited to the newest n.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSONError(w, NewBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	if v := r.URL.Query().Get("sensor"); v != "" {
		sensor, err := models.ParseSensorType(v)
		if err != nil {
			JSONError(w, NewBadRequest(err.Error()))
			return
		}
		OK(w, map[models.SensorType][]models.SensorReading{
			sensor: newest(s.monitor.History.Readings(sensor), limit),
		})
		return
	}

	all := s.monitor.History.All()
	for sensor, readings := range all {
		all[sensor] = newest(readings, limit)
	}
	OK(w, all)
}

func newest(readings []models.SensorReading, limit int) []models.SensorReading {
	if limit > 0 && len(readings) > limit {
		return readings[len(readings)-limit:]
	}
	return readings
}

func (s *Server) getSummaries(w http.ResponseWriter, r *http.Request) {
	sums := s.monitor.Summaries.Latest()
	out := make(map[models.SensorType]SummaryResponse, len(sums))
	for sensor, sum := range sums {
		out[sensor] = toSummaryResponse(sum)
	}
	OK(w, out)
}

// getSensorSummary is computed on demand rather than from the periodic refresh.
func (s *Server) getSensorSummary(w http.ResponseWriter, r *http.Request) {
	sensor, err := models.ParseSensorType(chi.URLParam(r, "sensor"))
	if err != nil {
		JSONError(w, NewNotFound(err.Error()))
		return
	}
	OK(w, toSummaryResponse(s.monitor.History.Summary(sensor)))
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.monitor.History.WriteXLSX(&buf); err != nil {
		s.logger.Error("history export failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}

	filename := fmt.Sprintf("nursery-history-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("history export write failed", zap.Error(err))
	}
}
