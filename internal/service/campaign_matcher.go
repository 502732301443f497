package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
)

// CampaignStore lists evaluable campaigns, priority ascending with created_at
// then id as the tie-break.
type CampaignStore interface {
	ListActive(ctx context.Context, now time.Time) ([]models.Campaign, error)
}

// GrantStore persists incentive grants.
type GrantStore interface {
	GetBySession(ctx context.Context, sessionID int64) (*models.IncentiveGrant, error)
	Create(ctx context.Context, g *models.IncentiveGrant) error
}

// SessionCounter exposes completed-session counts for session-count rules.
type SessionCounter interface {
	CountDriverSessions(ctx context.Context, driverID int64, chargerID string) (int, error)
}

// CapsChecker enforces per-driver/per-charger/per-day caps, evaluated as the
// final rule predicate. Implemented by the campaign administration service.
type CapsChecker interface {
	CheckDriverCaps(ctx context.Context, campaign *models.Campaign, driverID int64, chargerID string) (bool, error)
}

// DriverDirectory resolves driver emails for allow-list rules.
type DriverDirectory interface {
	EmailByID(ctx context.Context, driverID int64) (string, error)
}

// Granter is the slice of the reward ledger the matcher consumes.
type Granter interface {
	DecrementBudget(ctx context.Context, campaignID, amountCents int64) (bool, error)
	GrantToDriver(ctx context.Context, input GrantInput) (*models.LedgerTransaction, error)
}

// AllowAllCaps is the default caps policy when no campaign service is wired.
type AllowAllCaps struct{}

// CheckDriverCaps always allows.
func (AllowAllCaps) CheckDriverCaps(context.Context, *models.Campaign, int64, string) (bool, error) {
	return true, nil
}

// CampaignMatcher evaluates ended sessions against reward campaigns and issues
// at most one grant per session.
type CampaignMatcher struct {
	campaigns CampaignStore
	grants    GrantStore
	sessions  SessionCounter
	ledger    Granter
	caps      CapsChecker
	drivers   DriverDirectory
	logger    *zap.Logger
	now       func() time.Time
}

// NewCampaignMatcher builds the matcher. Caps defaults to allow-all when nil;
// drivers may be nil, in which case email allow-lists match nobody.
func NewCampaignMatcher(
	campaigns CampaignStore,
	grants GrantStore,
	sessions SessionCounter,
	ledger Granter,
	caps CapsChecker,
	drivers DriverDirectory,
	logger *zap.Logger,
) *CampaignMatcher {
	if caps == nil {
		caps = AllowAllCaps{}
	}
	return &CampaignMatcher{
		campaigns: campaigns,
		grants:    grants,
		sessions:  sessions,
		ledger:    ledger,
		caps:      caps,
		drivers:   drivers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateSession matches an ended session against active campaigns in
// priority order and issues a grant from the first one that matches and still
// has budget. Budget exhaustion falls through to the next matching campaign.
// Re-invocation for an already-granted session returns the existing grant.
func (m *CampaignMatcher) EvaluateSession(ctx context.Context, session *models.SessionEvent) (*models.IncentiveGrant, error) {
	if session == nil || !session.Ended() || session.DurationMinutes == nil || *session.DurationMinutes < 1 {
		return nil, nil
	}

	existing, err := m.grants.GetBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	campaigns, err := m.campaigns.ListActive(ctx, m.now())
	if err != nil {
		return nil, err
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		matched, err := m.matchRules(ctx, campaign, session)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}

		ok, err := m.caps.CheckDriverCaps(ctx, campaign, session.DriverID, session.ChargerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		ok, err = m.ledger.DecrementBudget(ctx, campaign.ID, campaign.CostPerSessionCents)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Budget exhausted is a normal miss; keep evaluating lower priorities.
			m.logger.Debug("campaign budget exhausted",
				zap.Int64("campaign_id", campaign.ID),
				zap.Int64("session_id", session.ID),
			)
			continue
		}

		return m.issueGrant(ctx, campaign, session)
	}

	return nil, nil
}

func (m *CampaignMatcher) issueGrant(ctx context.Context, campaign *models.Campaign, session *models.SessionEvent) (*models.IncentiveGrant, error) {
	sessionID := session.ID
	tx, err := m.ledger.GrantToDriver(ctx, GrantInput{
		DriverID:       session.DriverID,
		AmountCents:    campaign.CostPerSessionCents,
		Type:           models.TransactionTypeCampaignReward,
		SessionID:      &sessionID,
		Metadata:       fmt.Sprintf(`{"campaign_id":%d,"campaign_name":%q}`, campaign.ID, campaign.Name),
		IdempotencyKey: models.GrantIdempotencyKey(campaign.ID, session.ID),
	})
	if err != nil {
		// Budget is already spent; the session stays grant-less and eligible
		// for an idempotent re-evaluation. Needs operator reconciliation.
		m.logger.Error("wallet credit failed after budget decrement",
			zap.Int64("campaign_id", campaign.ID),
			zap.Int64("session_id", session.ID),
			zap.Int64("amount_cents", campaign.CostPerSessionCents),
			zap.Error(err),
		)
		return nil, fmt.Errorf("matcher: credit after decrement: %w", err)
	}

	grant := &models.IncentiveGrant{
		CampaignID:     campaign.ID,
		SessionID:      session.ID,
		DriverID:       session.DriverID,
		AmountCents:    campaign.CostPerSessionCents,
		Status:         models.GrantStatusIssued,
		TransactionID:  tx.ID,
		IdempotencyKey: models.GrantIdempotencyKey(campaign.ID, session.ID),
	}
	if err := m.grants.Create(ctx, grant); err != nil {
		m.logger.Error("grant insert failed after credit",
			zap.Int64("campaign_id", campaign.ID),
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("matcher: record grant: %w", err)
	}

	m.logger.Info("incentive granted",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int64("session_id", session.ID),
		zap.Int64("driver_id", session.DriverID),
		zap.Int64("amount_cents", grant.AmountCents),
	)
	return grant, nil
}

// matchRules evaluates the campaign's rule set as a conjunction over the
// session. Unset rule fields are no constraint. Predicates run cheapest first.
func (m *CampaignMatcher) matchRules(ctx context.Context, c *models.Campaign, s *models.SessionEvent) (bool, error) {
	duration := *s.DurationMinutes

	if duration < c.MinDurationMinutes {
		return false, nil
	}
	if c.MaxDurationMinutes != nil && duration > *c.MaxDurationMinutes {
		return false, nil
	}
	if len(c.ChargerIDs) > 0 && !slices.Contains(c.ChargerIDs, s.ChargerID) {
		return false, nil
	}
	if len(c.Networks) > 0 && !slices.Contains(c.Networks, s.ChargerNetwork) {
		return false, nil
	}
	if len(c.Zones) > 0 && !slices.Contains(c.Zones, s.Zone) {
		return false, nil
	}
	if c.GeoLatitude != nil && c.GeoLongitude != nil && c.GeoRadiusMeters != nil {
		if !s.HasLocation() {
			return false, nil
		}
		distance := HaversineMeters(*c.GeoLatitude, *c.GeoLongitude, *s.Latitude, *s.Longitude)
		if distance > *c.GeoRadiusMeters {
			return false, nil
		}
	}
	if c.TimeStart != "" && c.TimeEnd != "" {
		ok, err := inTimeWindow(s.StartTime, c.TimeStart, c.TimeEnd)
		if err != nil {
			return false, fmt.Errorf("matcher: campaign %d time rule: %w", c.ID, err)
		}
		if !ok {
			return false, nil
		}
	}
	if len(c.DaysOfWeek) > 0 && !slices.Contains(c.DaysOfWeek, int(s.StartTime.Weekday())) {
		return false, nil
	}
	if c.MinPowerKW != nil {
		if s.PowerKW == nil || *s.PowerKW < *c.MinPowerKW {
			return false, nil
		}
	}
	if len(c.ConnectorTypes) > 0 && !slices.Contains(c.ConnectorTypes, s.ConnectorType) {
		return false, nil
	}
	if c.MinDriverSessions != nil || c.MaxDriverSessions != nil {
		count, err := m.sessions.CountDriverSessions(ctx, s.DriverID, "")
		if err != nil {
			return false, err
		}
		if c.MinDriverSessions != nil && count < *c.MinDriverSessions {
			return false, nil
		}
		if c.MaxDriverSessions != nil && count > *c.MaxDriverSessions {
			return false, nil
		}
	}
	if len(c.DriverIDs) > 0 || len(c.DriverEmails) > 0 {
		ok, err := m.driverAllowed(ctx, c, s.DriverID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *CampaignMatcher) driverAllowed(ctx context.Context, c *models.Campaign, driverID int64) (bool, error) {
	if slices.Contains(c.DriverIDs, driverID) {
		return true, nil
	}
	if len(c.DriverEmails) == 0 || m.drivers == nil {
		return false, nil
	}
	email, err := m.drivers.EmailByID(ctx, driverID)
	if err != nil {
		return false, err
	}
	for _, allowed := range c.DriverEmails {
		if strings.EqualFold(allowed, email) {
			return true, nil
		}
	}
	return false, nil
}

// inTimeWindow reports whether t's time of day falls inside [start, end],
// supporting overnight wrap: 22:00-06:00 covers 23:30 and 02:00 but not 12:00.
func inTimeWindow(t time.Time, start, end string) (bool, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false, err
	}
	minute := t.Hour()*60 + t.Minute()

	if startMin <= endMin {
		return minute >= startMin && minute <= endMin, nil
	}
	return minute >= startMin || minute <= endMin, nil
}

func parseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
