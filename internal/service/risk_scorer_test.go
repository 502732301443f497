package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
)

type fakeAuditStore struct {
	mu           sync.Mutex
	attempts     []models.VerifyAttempt
	fingerprints map[string]*models.DeviceFingerprint
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{fingerprints: make(map[string]*models.DeviceFingerprint)}
}

func (f *fakeAuditStore) InsertVerifyAttempt(_ context.Context, a *models.VerifyAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.attempts) + 1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAuditStore) CountVerifyAttemptsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.attempts {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeAuditStore) CountDistinctIPsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ips := make(map[string]struct{})
	for _, a := range f.attempts {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			ips[a.IPAddress] = struct{}{}
		}
	}
	return len(ips), nil
}

func (f *fakeAuditStore) UpsertFingerprint(_ context.Context, fp *models.DeviceFingerprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fp.Fingerprint
	if existing, ok := f.fingerprints[key]; ok {
		existing.LastSeenAt = time.Now().UTC()
		*fp = *existing
		return nil
	}
	fp.ID = int64(len(f.fingerprints) + 1)
	fp.FirstSeenAt = time.Now().UTC()
	fp.LastSeenAt = fp.FirstSeenAt
	copied := *fp
	f.fingerprints[key] = &copied
	return nil
}

func seedAttempts(store *fakeAuditStore, userID int64, count int, at time.Time, ip string) {
	for i := 0; i < count; i++ {
		store.attempts = append(store.attempts, models.VerifyAttempt{
			UserID:    userID,
			IPAddress: ip,
			CreatedAt: at,
		})
	}
}

func newTestScorer(audit *fakeAuditStore, sessions *fakeSessionStore) *RiskScorer {
	return NewRiskScorer(audit, sessions, DefaultRiskThresholds(), zap.NewNop())
}

func TestRiskScoreCleanUser(t *testing.T) {
	scorer := newTestScorer(newFakeAuditStore(), newFakeSessionStore())

	score, err := scorer.ComputeRiskScore(context.Background(), 7, time.Now().UTC())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 0 {
		t.Fatalf("expected zero score, got %d", score.Score)
	}
	if len(score.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", score.Reasons)
	}
}

func TestRiskScoreVerifyVelocity(t *testing.T) {
	audit := newFakeAuditStore()
	now := time.Now().UTC()
	seedAttempts(audit, 7, 11, now.Add(-10*time.Minute), "10.0.0.1")
	scorer := newTestScorer(audit, newFakeSessionStore())

	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 30 {
		t.Fatalf("expected +30 for verify velocity, got %d", score.Score)
	}
	if len(score.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", score.Reasons)
	}
	if !strings.Contains(score.Reasons[0], "11") || !strings.Contains(score.Reasons[0], "10") {
		t.Fatalf("reason must cite count and threshold, got %q", score.Reasons[0])
	}
}

func TestRiskScoreIgnoresAttemptsOutsideWindow(t *testing.T) {
	audit := newFakeAuditStore()
	now := time.Now().UTC()
	seedAttempts(audit, 7, 20, now.Add(-2*time.Hour), "10.0.0.1")
	scorer := newTestScorer(audit, newFakeSessionStore())

	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 0 {
		t.Fatalf("stale attempts must not score, got %d", score.Score)
	}
}

func TestRiskScoreDistinctIPs(t *testing.T) {
	audit := newFakeAuditStore()
	now := time.Now().UTC()
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		seedAttempts(audit, 7, 1, now.Add(-time.Duration(i+2)*time.Hour), ip)
	}
	scorer := newTestScorer(audit, newFakeSessionStore())

	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 30 {
		t.Fatalf("expected +30 for ip diversity, got %d", score.Score)
	}
	if !strings.Contains(score.Reasons[0], "4") || !strings.Contains(score.Reasons[0], "3") {
		t.Fatalf("reason must cite count and threshold, got %q", score.Reasons[0])
	}
}

func seedVerifiedSession(store *fakeSessionStore, driverID int64, start time.Time, lat, lng float64) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextID++
	end := start.Add(5 * time.Minute)
	store.sessions[store.nextID] = &models.SessionEvent{
		ID:        store.nextID,
		DriverID:  driverID,
		ChargerID: "chg-1",
		StartTime: start,
		EndTime:   &end,
		Verified:  true,
		Latitude:  &lat,
		Longitude: &lng,
	}
}

func seedPlainSession(store *fakeSessionStore, driverID int64, start time.Time) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextID++
	store.sessions[store.nextID] = &models.SessionEvent{
		ID:        store.nextID,
		DriverID:  driverID,
		ChargerID: "chg-1",
		StartTime: start,
	}
}

func TestRiskScoreGeoJump(t *testing.T) {
	sessions := newFakeSessionStore()
	now := time.Now().UTC()
	// Austin to Dallas (~290km) ten minutes apart is implausible travel.
	seedVerifiedSession(sessions, 7, now.Add(-30*time.Minute), 30.2672, -97.7431)
	seedVerifiedSession(sessions, 7, now.Add(-20*time.Minute), 32.7767, -96.7970)
	scorer := newTestScorer(newFakeAuditStore(), sessions)

	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 40 {
		t.Fatalf("expected +40 for geo jump, got %d (%v)", score.Score, score.Reasons)
	}
	if !strings.Contains(score.Reasons[0], "geo jump") {
		t.Fatalf("expected geo jump reason, got %q", score.Reasons[0])
	}
}

func TestRiskScoreNoGeoJumpForSlowTravel(t *testing.T) {
	sessions := newFakeSessionStore()
	now := time.Now().UTC()
	seedVerifiedSession(sessions, 7, now.Add(-3*time.Hour), 30.2672, -97.7431)
	seedVerifiedSession(sessions, 7, now.Add(-20*time.Minute), 32.7767, -96.7970)
	scorer := newTestScorer(newFakeAuditStore(), sessions)

	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score != 0 {
		t.Fatalf("hours-apart sessions must not trip geo jump, got %d", score.Score)
	}
}

func TestRiskScorePenaltiesAccumulate(t *testing.T) {
	audit := newFakeAuditStore()
	sessions := newFakeSessionStore()
	now := time.Now().UTC()

	seedAttempts(audit, 7, 11, now.Add(-5*time.Minute), "10.0.0.1")
	for i, ip := range []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		seedAttempts(audit, 7, 1, now.Add(-time.Duration(i+2)*time.Hour), ip)
	}
	seedVerifiedSession(sessions, 7, now.Add(-30*time.Minute), 30.2672, -97.7431)
	seedVerifiedSession(sessions, 7, now.Add(-20*time.Minute), 32.7767, -96.7970)
	for i := 0; i < 5; i++ {
		seedPlainSession(sessions, 7, now.Add(-time.Duration(i+1)*time.Minute))
	}

	scorer := newTestScorer(audit, sessions)
	score, err := scorer.ComputeRiskScore(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// 30 (verify velocity) + 30 (session velocity) + 30 (ips) + 40 (geo jump).
	if score.Score != 130 {
		t.Fatalf("expected uncapped 130, got %d (%v)", score.Score, score.Reasons)
	}
	if len(score.Reasons) != 4 {
		t.Fatalf("expected four reasons, got %v", score.Reasons)
	}
}

func TestRecordVerifyAttemptAlwaysPersists(t *testing.T) {
	audit := newFakeAuditStore()
	scorer := newTestScorer(audit, newFakeSessionStore())
	ctx := context.Background()

	if err := scorer.RecordVerifyAttempt(ctx, &models.VerifyAttempt{UserID: 7, IPAddress: "10.0.0.1", Success: false}); err != nil {
		t.Fatalf("record failed attempt: %v", err)
	}
	if err := scorer.RecordVerifyAttempt(ctx, &models.VerifyAttempt{UserID: 7, IPAddress: "10.0.0.1", Success: true}); err != nil {
		t.Fatalf("record successful attempt: %v", err)
	}
	if len(audit.attempts) != 2 {
		t.Fatalf("expected both outcomes recorded, got %d", len(audit.attempts))
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("10.0.0.1", "app/1.0", "en-US", "ios")
	b := Fingerprint("10.0.0.1", "app/1.0", "en-US", "ios")
	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex length 64, got %d", len(a))
	}
	if c := Fingerprint("10.0.0.2", "app/1.0", "en-US", "ios"); c == a {
		t.Fatal("different inputs must produce different fingerprints")
	}
}

func TestRecordDeviceUpserts(t *testing.T) {
	audit := newFakeAuditStore()
	scorer := newTestScorer(audit, newFakeSessionStore())
	ctx := context.Background()

	first, err := scorer.RecordDevice(ctx, 7, "10.0.0.1", "app/1.0", "en-US", "ios")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := scorer.RecordDevice(ctx, 7, "10.0.0.1", "app/1.0", "en-US", "ios")
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Fatal("expected same device fingerprint")
	}
	if len(audit.fingerprints) != 1 {
		t.Fatalf("expected single fingerprint row, got %d", len(audit.fingerprints))
	}
}
