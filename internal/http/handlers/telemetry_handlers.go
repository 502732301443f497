package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/service"
)

// TelemetryHandler holds endpoints invoked by the telemetry pipeline.
type TelemetryHandler struct {
	tracker *service.SessionTracker
	matcher *service.CampaignMatcher
	logger  *zap.Logger
}

// NewTelemetryHandler builds handler set.
func NewTelemetryHandler(tracker *service.SessionTracker, matcher *service.CampaignMatcher, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		tracker: tracker,
		matcher: matcher,
		logger:  logger,
	}
}

type telemetryRequest struct {
	DriverID  int64            `json:"driver_id"`
	VehicleID string           `json:"vehicle_id,omitempty"`
	Telemetry models.Telemetry `json:"telemetry"`
}

type sessionEndRequest struct {
	SessionID     int64    `json:"session_id"`
	EndedReason   string   `json:"ended_reason,omitempty"`
	BatteryEndPct *float64 `json:"battery_end_pct,omitempty"`
	EnergyKWh     *float64 `json:"energy_kwh,omitempty"`
}

// HandleTelemetry handles POST /internal/telemetry.
func (h *TelemetryHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DriverID == 0 {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	if req.Telemetry.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "telemetry.charger_id is required")
		return
	}

	session, err := h.tracker.CreateOrUpdate(r.Context(), req.DriverID, req.VehicleID, req.Telemetry)
	if err != nil {
		h.logger.Error("telemetry upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process telemetry")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "ok", "session_id": session.ID})
}

// HandleSessionEnd handles POST /internal/sessions/end. Ending a session also
// runs campaign evaluation inline; both steps are idempotent, so at-least-once
// delivery of the end event is safe.
func (h *TelemetryHandler) HandleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == 0 {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	session, err := h.tracker.End(r.Context(), req.SessionID, req.EndedReason, req.BatteryEndPct, req.EnergyKWh)
	if err != nil {
		h.logger.Error("end session failed", zap.Int64("session_id", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	grant, err := h.matcher.EvaluateSession(r.Context(), session)
	if err != nil {
		h.logger.Error("campaign evaluation failed", zap.Int64("session_id", session.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "campaign evaluation failed")
		return
	}

	payload := map[string]interface{}{"status": "ok", "session": session}
	if grant != nil {
		payload["grant"] = grant
	}
	writeJSON(w, http.StatusAccepted, payload)
}
