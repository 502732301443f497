package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/service"
)

// Frame types accepted on the telemetry feed.
const (
	frameTypeTelemetry = "telemetry"
	frameTypeEnd       = "end"
)

type feedFrame struct {
	Type          string           `json:"type"`
	DriverID      int64            `json:"driver_id,omitempty"`
	VehicleID     string           `json:"vehicle_id,omitempty"`
	Telemetry     models.Telemetry `json:"telemetry,omitempty"`
	SessionID     int64            `json:"session_id,omitempty"`
	EndedReason   string           `json:"ended_reason,omitempty"`
	BatteryEndPct *float64         `json:"battery_end_pct,omitempty"`
	EnergyKWh     *float64         `json:"energy_kwh,omitempty"`
}

type feedAck struct {
	Status    string `json:"status"`
	SessionID int64  `json:"session_id,omitempty"`
	GrantID   int64  `json:"grant_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TelemetryProcessor turns feed frames into tracker and matcher calls.
type TelemetryProcessor struct {
	tracker *service.SessionTracker
	matcher *service.CampaignMatcher
	logger  *zap.Logger
}

// NewTelemetryProcessor builds processor.
func NewTelemetryProcessor(tracker *service.SessionTracker, matcher *service.CampaignMatcher, logger *zap.Logger) *TelemetryProcessor {
	return &TelemetryProcessor{
		tracker: tracker,
		matcher: matcher,
		logger:  logger,
	}
}

// Process decodes one frame and returns the ack to send back on the feed.
func (p *TelemetryProcessor) Process(ctx context.Context, chargerID string, raw []byte) ([]byte, error) {
	var frame feedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("ws: decode frame: %w", err)
	}

	switch frame.Type {
	case frameTypeTelemetry:
		if frame.DriverID == 0 {
			return ack(feedAck{Status: "error", Error: "driver_id is required"})
		}
		if frame.Telemetry.ChargerID == "" {
			frame.Telemetry.ChargerID = chargerID
		}
		session, err := p.tracker.CreateOrUpdate(ctx, frame.DriverID, frame.VehicleID, frame.Telemetry)
		if err != nil {
			return nil, err
		}
		return ack(feedAck{Status: "ok", SessionID: session.ID})

	case frameTypeEnd:
		if frame.SessionID == 0 {
			return ack(feedAck{Status: "error", Error: "session_id is required"})
		}
		session, err := p.tracker.End(ctx, frame.SessionID, frame.EndedReason, frame.BatteryEndPct, frame.EnergyKWh)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return ack(feedAck{Status: "error", Error: "session not found"})
		}
		grant, err := p.matcher.EvaluateSession(ctx, session)
		if err != nil {
			p.logger.Error("campaign evaluation failed",
				zap.Int64("session_id", session.ID),
				zap.Error(err),
			)
			return ack(feedAck{Status: "ok", SessionID: session.ID})
		}
		response := feedAck{Status: "ok", SessionID: session.ID}
		if grant != nil {
			response.GrantID = grant.ID
		}
		return ack(response)

	default:
		return ack(feedAck{Status: "error", Error: fmt.Sprintf("unknown frame type %q", frame.Type)})
	}
}

func ack(a feedAck) ([]byte, error) {
	return json.Marshal(a)
}
