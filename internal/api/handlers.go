package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"smartaqua.dev/smartaqua/internal/engine"
)

// Query parameter defaults and caps.
const (
	defaultTelemetryHours = 24
	maxTelemetryHours     = 168
	defaultForecastDays   = 7
	maxForecastDays       = 30
	maxAlertsReturned     = 50
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	statuses := s.engine.Statuses()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(statuses),
		"devices": statuses,
	})
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	status, err := s.engine.Status(deviceID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.logger.Error("failed to load device status", "device_id", deviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	hours, err := queryInt(r, "hours", defaultTelemetryHours)
	if err != nil || hours <= 0 {
		s.writeError(w, http.StatusBadRequest, "hours must be a positive integer")
		return
	}
	if hours > maxTelemetryHours {
		hours = maxTelemetryHours
	}

	readings := s.engine.Window(deviceID, time.Duration(hours)*time.Hour)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"hours":     hours,
		"count":     len(readings),
		"readings":  readings,
	})
}

func (s *Server) handleDeviceAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		resolved = &value
	}

	alerts := s.engine.Alerts(deviceID, resolved, maxAlertsReturned)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"count":     len(alerts),
		"alerts":    alerts,
	})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	alertID := chi.URLParam(r, "alertID")

	if err := s.engine.ResolveAlert(deviceID, alertID); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.logger.Error("failed to resolve alert",
			"device_id", deviceID,
			"alert_id", alertID,
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("alert resolved", "device_id", deviceID, "alert_id", alertID)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "resolved",
		"alert_id": alertID,
	})
}

func (s *Server) handleDevicePredictions(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	days, err := queryInt(r, "days", defaultForecastDays)
	if err != nil || days <= 0 {
		s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	forecast, err := s.engine.Predictions(deviceID, days)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.logger.Error("failed to build forecast", "device_id", deviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"days":      days,
		"forecast":  forecast,
	})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
