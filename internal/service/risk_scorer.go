package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
)

// AuditStore is the append-only verify/fingerprint history the scorer reads.
type AuditStore interface {
	InsertVerifyAttempt(ctx context.Context, a *models.VerifyAttempt) error
	CountVerifyAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountDistinctIPsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	UpsertFingerprint(ctx context.Context, fp *models.DeviceFingerprint) error
}

// SessionHistory is the session-side read surface for risk heuristics.
type SessionHistory interface {
	CountStartedSince(ctx context.Context, driverID int64, since time.Time) (int, error)
	RecentVerifiedLocated(ctx context.Context, driverID int64, limit int) ([]models.SessionEvent, error)
}

// RiskThresholds configure the windowed heuristics.
type RiskThresholds struct {
	MaxVerifyPerHour   int
	MaxSessionsPerHour int
	MaxDistinctIPsDay  int
	MaxGeoJumpMeters   float64
}

// DefaultRiskThresholds mirror production policy defaults.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		MaxVerifyPerHour:   10,
		MaxSessionsPerHour: 4,
		MaxDistinctIPsDay:  3,
		MaxGeoJumpMeters:   50000,
	}
}

// RiskScore is the scorer's verdict: an uncapped penalty sum plus the reasons
// that contributed. Gating on the score is the caller's policy decision.
type RiskScore struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// Heuristic penalties and windows.
const (
	penaltyVerifyVelocity  = 30
	penaltySessionVelocity = 30
	penaltyIPDiversity     = 30
	penaltyGeoJump         = 40
	geoJumpMaxGap          = 15 * time.Minute
)

// RiskScorer scores location-verification attempts for fraud. It only reads
// append-only audit history, so scoring needs no locking and is reproducible
// for a given (user, now) pair.
type RiskScorer struct {
	audit      AuditStore
	sessions   SessionHistory
	thresholds RiskThresholds
	logger     *zap.Logger
}

// NewRiskScorer builds the scorer.
func NewRiskScorer(audit AuditStore, sessions SessionHistory, thresholds RiskThresholds, logger *zap.Logger) *RiskScorer {
	return &RiskScorer{audit: audit, sessions: sessions, thresholds: thresholds, logger: logger}
}

// ComputeRiskScore sums four independent windowed heuristics. It never blocks
// a caller itself; it reports the score and the reasons behind it.
func (r *RiskScorer) ComputeRiskScore(ctx context.Context, userID int64, now time.Time) (RiskScore, error) {
	result := RiskScore{Reasons: []string{}}

	verifyCount, err := r.audit.CountVerifyAttemptsSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return result, fmt.Errorf("risk: count verify attempts: %w", err)
	}
	if verifyCount > r.thresholds.MaxVerifyPerHour {
		result.Score += penaltyVerifyVelocity
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("verify attempts in last hour: %d (max %d)", verifyCount, r.thresholds.MaxVerifyPerHour))
	}

	sessionCount, err := r.sessions.CountStartedSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return result, fmt.Errorf("risk: count sessions: %w", err)
	}
	if sessionCount > r.thresholds.MaxSessionsPerHour {
		result.Score += penaltySessionVelocity
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("sessions started in last hour: %d (max %d)", sessionCount, r.thresholds.MaxSessionsPerHour))
	}

	ipCount, err := r.audit.CountDistinctIPsSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return result, fmt.Errorf("risk: count distinct ips: %w", err)
	}
	if ipCount > r.thresholds.MaxDistinctIPsDay {
		result.Score += penaltyIPDiversity
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("distinct verify IPs in last 24h: %d (max %d)", ipCount, r.thresholds.MaxDistinctIPsDay))
	}

	jumped, reason, err := r.geoJump(ctx, userID)
	if err != nil {
		return result, err
	}
	if jumped {
		result.Score += penaltyGeoJump
		result.Reasons = append(result.Reasons, reason)
	}

	return result, nil
}

// geoJump compares the two most recent verified located sessions; a short time
// gap with a long distance means physically implausible travel.
func (r *RiskScorer) geoJump(ctx context.Context, userID int64) (bool, string, error) {
	sessions, err := r.sessions.RecentVerifiedLocated(ctx, userID, 2)
	if err != nil {
		return false, "", fmt.Errorf("risk: recent verified sessions: %w", err)
	}
	if len(sessions) < 2 {
		return false, "", nil
	}

	latest, previous := sessions[0], sessions[1]
	gap := latest.StartTime.Sub(previous.StartTime)
	if gap < 0 {
		gap = -gap
	}
	if gap > geoJumpMaxGap {
		return false, "", nil
	}

	distance := HaversineMeters(*previous.Latitude, *previous.Longitude, *latest.Latitude, *latest.Longitude)
	if distance <= r.thresholds.MaxGeoJumpMeters {
		return false, "", nil
	}

	reason := fmt.Sprintf("geo jump: %.0fm in %s (max %.0fm)", distance, gap.Round(time.Second), r.thresholds.MaxGeoJumpMeters)
	return true, reason, nil
}

// RecordVerifyAttempt durably appends the attempt regardless of its outcome so
// rolling-window counts stay accurate for future scoring.
func (r *RiskScorer) RecordVerifyAttempt(ctx context.Context, attempt *models.VerifyAttempt) error {
	if err := r.audit.InsertVerifyAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("risk: record verify attempt: %w", err)
	}
	return nil
}

// RecordDevice upserts the (user, device) fingerprint with last-seen tracking.
func (r *RiskScorer) RecordDevice(ctx context.Context, userID int64, ip, userAgent, acceptLanguage, platform string) (*models.DeviceFingerprint, error) {
	fp := &models.DeviceFingerprint{
		UserID:      userID,
		Fingerprint: Fingerprint(ip, userAgent, acceptLanguage, platform),
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	if err := r.audit.UpsertFingerprint(ctx, fp); err != nil {
		return nil, fmt.Errorf("risk: upsert fingerprint: %w", err)
	}
	return fp, nil
}

// Fingerprint derives a fixed-length device hash from request attributes.
func Fingerprint(ip, userAgent, acceptLanguage, platform string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent + "|" + acceptLanguage + "|" + platform))
	return hex.EncodeToString(sum[:])
}
