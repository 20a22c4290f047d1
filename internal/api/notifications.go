package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/alerting"
	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
)

// TestRequest selects the channel for a test notification.
// An empty channel uses the configured one.
type TestRequest struct {
	Channel models.Channel `json:"channel,omitempty"`
}

// ActiveResponse lists in-app notifications and the visible subset.
type ActiveResponse struct {
	Items   []models.ActiveNotification `json:"items"`
	Visible []models.ActiveNotification `json:"visible"`
}

// StatsResponse reports engine and history counters.
type StatsResponse struct {
	Engine  alerting.EngineStatsSnapshot `json:"engine"`
	State   string                       `json:"state"`
	History history.Stats                `json:"history"`
	// CooldownSeconds is the remaining suppression per sensor.
	CooldownSeconds map[models.SensorType]float64 `json:"cooldown_seconds"`
}

// PermissionResponse reports the browser push permission.
type PermissionResponse struct {
	Permission models.Permission `json:"permission"`
}

func (s *Server) listNotificationLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.monitor.Engine.Logs()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSONError(w, NewBadRequest("limit must be a non-negative integer"))
			return
		}
		if n > 0 && n < len(logs) {
			logs = logs[:n]
		}
	}
	OK(w, logs)
}

func (s *Server) clearNotificationLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.monitor.Engine.ClearLogs(ctx); err != nil {
		s.writeUpdateError(w, "notification_logs", err)
		return
	}
	NoContent(w)
}

func (s *Server) sendTestNotification(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if r.ContentLength != 0 {
		if apiErr := decodeJSON(r, &req); apiErr != nil {
			JSONError(w, apiErr)
			return
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.monitor.Engine.SendTest(ctx, req.Channel); err != nil {
		s.logger.Warn("test notification failed",
			zap.String("channel", string(req.Channel)), zap.Error(err))
		JSONError(w, FromError(err))
		return
	}

	ch := req.Channel
	if ch == "" {
		ch = s.monitor.Settings.Notifications().Channel
	}
	OK(w, map[string]string{"status": "sent", "channel": string(ch)})
}

func (s *Server) triggerNotification(w http.ResponseWriter, r *http.Request) {
	var alert alerting.ManualAlert
	if apiErr := decodeJSON(r, &alert); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.monitor.Engine.Trigger(ctx, alert); err != nil {
		JSONError(w, FromError(err))
		return
	}
	Accepted(w, map[string]string{"status": "dispatched"})
}

func (s *Server) listActiveNotifications(w http.ResponseWriter, r *http.Request) {
	OK(w, ActiveResponse{
		Items:   s.monitor.Engine.ActiveNotifications(),
		Visible: s.monitor.Queue.Visible(),
	})
}

func (s *Server) dismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.monitor.Engine.Dismiss(chi.URLParam(r, "id")) {
		JSONError(w, NewNotFound("notification not found"))
		return
	}
	NoContent(w)
}

func (s *Server) getNotificationStats(w http.ResponseWriter, r *http.Request) {
	remaining := s.monitor.Engine.CooldownRemaining(time.Now())
	cooldowns := make(map[models.SensorType]float64, len(remaining))
	for sensor, d := range remaining {
		cooldowns[sensor] = d.Seconds()
	}

	OK(w, StatsResponse{
		Engine:          s.monitor.Engine.Stats(),
		State:           s.monitor.Engine.State().String(),
		History:         s.monitor.History.Stats(),
		CooldownSeconds: cooldowns,
	})
}

func (s *Server) getPushPermission(w http.ResponseWriter, r *http.Request) {
	OK(w, PermissionResponse{Permission: s.monitor.Registry.Permission(models.ChannelBrowser)})
}

func (s *Server) requestPushPermission(w http.ResponseWriter, r *http.Request) {
	n, ok := s.monitor.Registry.Get(models.ChannelBrowser)
	pn, isPerm := n.(notifier.PermissionNotifier)
	if !ok || !isPerm {
		JSONError(w, FromError(notifier.ErrNotConfigured))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	perm, err := pn.RequestPermission(ctx)
	if err != nil {
		s.logger.Warn("push permission request failed", zap.Error(err))
		JSONError(w, FromError(err))
		return
	}
	OK(w, PermissionResponse{Permission: perm})
}
