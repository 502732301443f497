package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/service"
)

// VerifyHandler scores location-verification attempts. The scorer only
// reports; the block decision against the configured threshold lives here.
type VerifyHandler struct {
	scorer         *service.RiskScorer
	blockThreshold int
	logger         *zap.Logger
}

// NewVerifyHandler builds handler.
func NewVerifyHandler(scorer *service.RiskScorer, blockThreshold int, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		scorer:         scorer,
		blockThreshold: blockThreshold,
		logger:         logger,
	}
}

type verifyRequest struct {
	UserID    int64    `json:"user_id"`
	ChargerID string   `json:"charger_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Platform  string   `json:"platform,omitempty"`
}

type verifyResponse struct {
	Allowed bool     `json:"allowed"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// ServeHTTP handles POST /verify.
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r)

	if _, err := h.scorer.RecordDevice(ctx, req.UserID, ip, r.UserAgent(), r.Header.Get("Accept-Language"), req.Platform); err != nil {
		h.logger.Warn("device fingerprint upsert failed", zap.Int64("user_id", req.UserID), zap.Error(err))
	}

	score, err := h.scorer.ComputeRiskScore(ctx, req.UserID, time.Now().UTC())
	if err != nil {
		h.logger.Error("risk scoring failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "risk scoring failed")
		return
	}

	allowed := score.Score < h.blockThreshold

	// The attempt is recorded whatever the decision so future window counts
	// stay accurate.
	attempt := &models.VerifyAttempt{
		UserID:    req.UserID,
		ChargerID: req.ChargerID,
		IPAddress: ip,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Success:   allowed,
	}
	if err := h.scorer.RecordVerifyAttempt(ctx, attempt); err != nil {
		h.logger.Error("verify attempt record failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record attempt")
		return
	}

	if !allowed {
		h.logger.Info("verification blocked",
			zap.Int64("user_id", req.UserID),
			zap.Int("score", score.Score),
			zap.Strings("reasons", score.Reasons),
		)
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Allowed: allowed,
		Score:   score.Score,
		Reasons: score.Reasons,
	})
}
