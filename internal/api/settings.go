package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// CloudConfigResponse hides the API key.
type CloudConfigResponse struct {
	Endpoint          string `json:"endpoint"`
	DeviceID          string `json:"device_id"`
	RefreshIntervalMS int64  `json:"refresh_interval_ms"`
	HasAPIKey         bool   `json:"has_api_key"`
}

func toCloudConfigResponse(c models.CloudConfig) CloudConfigResponse {
	return CloudConfigResponse{
		Endpoint:          c.Endpoint,
		DeviceID:          c.DeviceID,
		RefreshIntervalMS: c.RefreshIntervalMS,
		HasAPIKey:         c.APIKey != "",
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

// writeUpdateError logs unexpected failures; validation errors are the client's.
func (s *Server) writeUpdateError(w http.ResponseWriter, what string, err error) {
	apiErr := FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.Error("update failed", zap.String("setting", what), zap.Error(err))
	}
	JSONError(w, apiErr)
}

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.Settings.Thresholds())
}

func (s *Server) putThresholds(w http.ResponseWriter, r *http.Request) {
	var th models.Thresholds
	if apiErr := decodeJSON(r, &th); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.monitor.Settings.UpdateThresholds(ctx, th)
	if err != nil {
		s.writeUpdateError(w, "thresholds", err)
		return
	}
	OK(w, updated)
}

func (s *Server) resetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	th, err := s.monitor.Settings.ResetThresholds(ctx)
	if err != nil {
		s.writeUpdateError(w, "thresholds", err)
		return
	}
	OK(w, th)
}

func (s *Server) getCloudConfig(w http.ResponseWriter, r *http.Request) {
	OK(w, toCloudConfigResponse(s.monitor.Settings.CloudConfig()))
}

func (s *Server) patchCloudConfig(w http.ResponseWriter, r *http.Request) {
	var patch models.CloudConfigPatch
	if apiErr := decodeJSON(r, &patch); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.monitor.Settings.UpdateCloudConfig(ctx, patch)
	if err != nil {
		s.writeUpdateError(w, "cloud", err)
		return
	}
	OK(w, toCloudConfigResponse(updated))
}

func (s *Server) getNotificationSettings(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.Settings.Notifications())
}

func (s *Server) patchNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.NotificationSettingsPatch
	if apiErr := decodeJSON(r, &patch); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.monitor.Settings.UpdateNotifications(ctx, patch)
	if err != nil {
		s.writeUpdateError(w, "notifications", err)
		return
	}
	OK(w, updated)
}
