package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	redisstore "voltrewards/internal/redis"
	"voltrewards/internal/repository"
)

// SessionStore is the persistence surface the tracker needs.
type SessionStore interface {
	Create(ctx context.Context, s *models.SessionEvent) error
	GetByID(ctx context.Context, id int64) (*models.SessionEvent, error)
	FindActive(ctx context.Context, driverID int64, vehicleID string) (*models.SessionEvent, error)
	UpdateTelemetry(ctx context.Context, s *models.SessionEvent) error
	Finalize(ctx context.Context, s *models.SessionEvent) error
	CountCompleted(ctx context.Context, driverID int64, chargerID string) (int, error)
}

// ActiveSessionCache is the optional redis fast path for active lookups.
type ActiveSessionCache interface {
	Save(ctx context.Context, session redisstore.ActiveSession) error
	Get(ctx context.Context, driverID int64, vehicleID string) (*redisstore.ActiveSession, error)
	Delete(ctx context.Context, driverID int64, vehicleID string) error
}

// ChargerDirectory resolves charger metadata for session enrichment.
type ChargerDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Charger, error)
}

// SessionTracker owns the charging session lifecycle: telemetry-driven upserts,
// exactly-once termination and quality scoring.
type SessionTracker struct {
	store    SessionStore
	cache    ActiveSessionCache
	chargers ChargerDirectory
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionTracker builds the tracker. Cache and charger directory may be nil.
func NewSessionTracker(store SessionStore, cache ActiveSessionCache, chargers ChargerDirectory, logger *zap.Logger) *SessionTracker {
	return &SessionTracker{
		store:    store,
		cache:    cache,
		chargers: chargers,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrUpdate absorbs one telemetry fix. An existing active session for the
// (driver, vehicle) pair is merged in place; otherwise a new session starts.
// At-least-once telemetry delivery means duplicate fixes are expected here.
func (t *SessionTracker) CreateOrUpdate(ctx context.Context, driverID int64, vehicleID string, telemetry models.Telemetry) (*models.SessionEvent, error) {
	session, err := t.findActive(ctx, driverID, vehicleID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	if session != nil {
		t.mergeTelemetry(session, telemetry)
		if err := t.store.UpdateTelemetry(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session = &models.SessionEvent{
		DriverID:        driverID,
		VehicleID:       vehicleID,
		ChargerID:       telemetry.ChargerID,
		ConnectorType:   telemetry.ConnectorType,
		PowerKW:         telemetry.PowerKW,
		Latitude:        telemetry.Latitude,
		Longitude:       telemetry.Longitude,
		StartTime:       t.now(),
		BatteryStartPct: telemetry.BatteryPct,
		BatteryEndPct:   telemetry.BatteryPct,
		Source:          telemetry.Source,
		Verified:        telemetry.Verified,
	}
	if telemetry.EnergyKWh != nil {
		session.EnergyKWh = *telemetry.EnergyKWh
	}
	t.enrichFromCharger(ctx, session)

	if err := t.store.Create(ctx, session); err != nil {
		return nil, err
	}

	if t.cache != nil {
		cacheErr := t.cache.Save(ctx, redisstore.ActiveSession{
			SessionID: session.ID,
			DriverID:  driverID,
			VehicleID: vehicleID,
			ChargerID: session.ChargerID,
		})
		if cacheErr != nil {
			t.logger.Warn("failed to cache active session", zap.Error(cacheErr))
		}
	}

	t.logger.Info("session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("driver_id", driverID),
		zap.String("charger_id", session.ChargerID),
	)
	return session, nil
}

// End finalizes a session exactly once. Calling it again returns the stored
// session unchanged; an unknown id returns (nil, nil).
func (t *SessionTracker) End(ctx context.Context, sessionID int64, endedReason string, batteryEndPct, energyKWh *float64) (*models.SessionEvent, error) {
	session, err := t.store.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return session, nil
	}

	endTime := t.now()
	session.EndTime = &endTime
	minutes := int(math.Round(endTime.Sub(session.StartTime).Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	session.DurationMinutes = &minutes
	session.EndedReason = endedReason
	if energyKWh != nil && *energyKWh >= session.EnergyKWh {
		session.EnergyKWh = *energyKWh
	}
	if batteryEndPct != nil {
		session.BatteryEndPct = batteryEndPct
	}
	score := QualityScore(session)
	session.QualityScore = &score

	if err := t.store.Finalize(ctx, session); err != nil {
		// Lost the race with a concurrent End; the stored row already won.
		if errors.Is(err, repository.ErrSessionNotFound) {
			return t.store.GetByID(ctx, sessionID)
		}
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.Delete(ctx, session.DriverID, session.VehicleID); err != nil {
			t.logger.Warn("failed to evict active session cache", zap.Error(err))
		}
	}

	t.logger.Info("session ended",
		zap.Int64("session_id", session.ID),
		zap.Int("duration_minutes", minutes),
		zap.Int("quality_score", score),
		zap.String("ended_reason", endedReason),
	)
	return session, nil
}

// CountDriverSessions counts completed sessions, optionally per charger.
func (t *SessionTracker) CountDriverSessions(ctx context.Context, driverID int64, chargerID string) (int, error) {
	return t.store.CountCompleted(ctx, driverID, chargerID)
}

func (t *SessionTracker) findActive(ctx context.Context, driverID int64, vehicleID string) (*models.SessionEvent, error) {
	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, driverID, vehicleID); err == nil && cached != nil {
			session, err := t.store.GetByID(ctx, cached.SessionID)
			if err == nil && !session.Ended() {
				return session, nil
			}
		}
	}
	return t.store.FindActive(ctx, driverID, vehicleID)
}

func (t *SessionTracker) mergeTelemetry(session *models.SessionEvent, telemetry models.Telemetry) {
	// Energy meters are cumulative; ignore regressions from late frames.
	if telemetry.EnergyKWh != nil && *telemetry.EnergyKWh >= session.EnergyKWh {
		session.EnergyKWh = *telemetry.EnergyKWh
	}
	if telemetry.BatteryPct != nil {
		session.BatteryEndPct = telemetry.BatteryPct
		if session.BatteryStartPct == nil {
			session.BatteryStartPct = telemetry.BatteryPct
		}
	}
	if telemetry.PowerKW != nil {
		session.PowerKW = telemetry.PowerKW
	}
	if telemetry.Latitude != nil && telemetry.Longitude != nil {
		session.Latitude = telemetry.Latitude
		session.Longitude = telemetry.Longitude
	}
}

func (t *SessionTracker) enrichFromCharger(ctx context.Context, session *models.SessionEvent) {
	if t.chargers == nil || session.ChargerID == "" {
		return
	}
	charger, err := t.chargers.GetByID(ctx, session.ChargerID)
	if err != nil {
		if !errors.Is(err, repository.ErrChargerNotFound) {
			t.logger.Warn("charger lookup failed", zap.String("charger_id", session.ChargerID), zap.Error(err))
		}
		return
	}
	session.ChargerNetwork = charger.Network
	session.Zone = charger.Zone
	if session.Latitude == nil || session.Longitude == nil {
		lat, lng := charger.Latitude, charger.Longitude
		session.Latitude = &lat
		session.Longitude = &lng
	}
}

// Quality score weights.
const (
	qualityBase             = 50
	qualityLongBonus        = 20
	qualityShortPenalty     = 30
	qualityEnergyBonus      = 15
	qualityVerifiedBonus    = 10
	qualityBatteryBonus     = 5
	qualityLongMinutes      = 15
	qualityShortMinutes     = 2
	qualityEnergyKWhMinimum = 1.0
)

// QualityScore rates an ended session in [0,100]. Pure function of session
// fields so the same session always scores the same.
func QualityScore(s *models.SessionEvent) int {
	score := qualityBase
	if s.DurationMinutes != nil {
		if *s.DurationMinutes >= qualityLongMinutes {
			score += qualityLongBonus
		}
		if *s.DurationMinutes < qualityShortMinutes {
			// Suspiciously short sessions are a fraud signal.
			score -= qualityShortPenalty
		}
	}
	if s.EnergyKWh > qualityEnergyKWhMinimum {
		score += qualityEnergyBonus
	}
	if s.Verified {
		score += qualityVerifiedBonus
	}
	if s.BatteryStartPct != nil && s.BatteryEndPct != nil && *s.BatteryStartPct != *s.BatteryEndPct {
		score += qualityBatteryBonus
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
