package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/repository"
)

type fakeSessionStore struct {
	mu            sync.Mutex
	sessions      map[int64]*models.SessionEvent
	nextID        int64
	finalizeCalls int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[int64]*models.SessionEvent)}
}

func (f *fakeSessionStore) Create(_ context.Context, s *models.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id int64) (*models.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) FindActive(_ context.Context, driverID int64, vehicleID string) (*models.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.EndTime == nil && (vehicleID == "" || s.VehicleID == vehicleID) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) UpdateTelemetry(_ context.Context, s *models.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.EndTime != nil {
		return nil
	}
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessionStore) Finalize(_ context.Context, s *models.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.EndTime != nil {
		return repository.ErrSessionNotFound
	}
	f.finalizeCalls++
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessionStore) CountCompleted(_ context.Context, driverID int64, chargerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.EndTime != nil && (chargerID == "" || s.ChargerID == chargerID) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) CountStartedSince(_ context.Context, driverID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.sessions {
		if s.DriverID == driverID && !s.StartTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) RecentVerifiedLocated(_ context.Context, driverID int64, limit int) ([]models.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SessionEvent
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.Verified && s.Latitude != nil && s.Longitude != nil {
			out = append(out, *s)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartTime.After(out[i].StartTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestTracker(store *fakeSessionStore) *SessionTracker {
	return NewSessionTracker(store, nil, nil, zap.NewNop())
}

func TestCreateOrUpdateReusesActiveSession(t *testing.T) {
	store := newFakeSessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	first, err := tracker.CreateOrUpdate(ctx, 7, "veh-1", models.Telemetry{
		ChargerID:  "chg-1",
		EnergyKWh:  floatPtr(1.5),
		BatteryPct: floatPtr(40),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := tracker.CreateOrUpdate(ctx, 7, "veh-1", models.Telemetry{
		ChargerID:  "chg-1",
		EnergyKWh:  floatPtr(3.2),
		BatteryPct: floatPtr(55),
		PowerKW:    floatPtr(50),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected same session, got %d and %d", first.ID, second.ID)
	}
	if second.EnergyKWh != 3.2 {
		t.Fatalf("expected merged energy 3.2, got %v", second.EnergyKWh)
	}
	if second.BatteryEndPct == nil || *second.BatteryEndPct != 55 {
		t.Fatalf("expected battery end 55, got %v", second.BatteryEndPct)
	}
	if len(store.sessions) != 1 {
		t.Fatalf("expected single session, got %d", len(store.sessions))
	}
}

func TestCreateOrUpdateIgnoresMeterRegression(t *testing.T) {
	store := newFakeSessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	if _, err := tracker.CreateOrUpdate(ctx, 7, "", models.Telemetry{ChargerID: "chg-1", EnergyKWh: floatPtr(5)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	session, err := tracker.CreateOrUpdate(ctx, 7, "", models.Telemetry{ChargerID: "chg-1", EnergyKWh: floatPtr(2)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if session.EnergyKWh != 5 {
		t.Fatalf("expected energy to keep 5 after regression, got %v", session.EnergyKWh)
	}
}

func TestEndComputesDurationAndScore(t *testing.T) {
	store := newFakeSessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return start }

	session, err := tracker.CreateOrUpdate(ctx, 7, "", models.Telemetry{
		ChargerID:  "chg-1",
		BatteryPct: floatPtr(30),
		Verified:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tracker.now = func() time.Time { return start.Add(45 * time.Minute) }
	ended, err := tracker.End(ctx, session.ID, models.EndedReasonComplete, floatPtr(80), floatPtr(20))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.DurationMinutes == nil || *ended.DurationMinutes != 45 {
		t.Fatalf("expected 45 minute duration, got %v", ended.DurationMinutes)
	}
	// 50 + 20 (long) + 15 (energy) + 10 (verified) + 5 (battery delta) = 100.
	if ended.QualityScore == nil || *ended.QualityScore != 100 {
		t.Fatalf("expected quality 100, got %v", ended.QualityScore)
	}
	if ended.EndedReason != models.EndedReasonComplete {
		t.Fatalf("unexpected ended reason %q", ended.EndedReason)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	store := newFakeSessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	session, err := tracker.CreateOrUpdate(ctx, 7, "", models.Telemetry{ChargerID: "chg-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := tracker.End(ctx, session.ID, models.EndedReasonUnplugged, nil, nil)
	if err != nil {
		t.Fatalf("first end: %v", err)
	}
	second, err := tracker.End(ctx, session.ID, models.EndedReasonTimeout, nil, nil)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}

	if second.EndedReason != first.EndedReason {
		t.Fatalf("second end mutated reason: %q vs %q", second.EndedReason, first.EndedReason)
	}
	if !second.EndTime.Equal(*first.EndTime) {
		t.Fatalf("second end mutated end time")
	}
	if store.finalizeCalls != 1 {
		t.Fatalf("expected one finalize, got %d", store.finalizeCalls)
	}
}

func TestEndUnknownSession(t *testing.T) {
	tracker := newTestTracker(newFakeSessionStore())

	session, err := tracker.End(context.Background(), 999, models.EndedReasonComplete, nil, nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session for unknown id, got %+v", session)
	}
}

func TestCountDriverSessionsCompletedOnly(t *testing.T) {
	store := newFakeSessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	active, _ := tracker.CreateOrUpdate(ctx, 7, "veh-1", models.Telemetry{ChargerID: "chg-1"})
	done, _ := tracker.CreateOrUpdate(ctx, 7, "veh-2", models.Telemetry{ChargerID: "chg-2"})
	if _, err := tracker.End(ctx, done.ID, models.EndedReasonComplete, nil, nil); err != nil {
		t.Fatalf("end: %v", err)
	}
	_ = active

	count, err := tracker.CountDriverSessions(ctx, 7, "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 completed session, got %d", count)
	}

	count, err = tracker.CountDriverSessions(ctx, 7, "chg-1")
	if err != nil {
		t.Fatalf("count by charger: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 completed sessions at chg-1, got %d", count)
	}
}

func TestQualityScore(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	cases := []struct {
		name    string
		session models.SessionEvent
		want    int
	}{
		{
			name:    "one minute unverified zero energy",
			session: models.SessionEvent{DurationMinutes: intPtr(1)},
			want:    20,
		},
		{
			name: "full marks",
			session: models.SessionEvent{
				DurationMinutes: intPtr(45),
				EnergyKWh:       20,
				Verified:        true,
				BatteryStartPct: floatPtr(30),
				BatteryEndPct:   floatPtr(80),
			},
			want: 100,
		},
		{
			name:    "mid session",
			session: models.SessionEvent{DurationMinutes: intPtr(10), EnergyKWh: 0.5},
			want:    50,
		},
		{
			name: "identical battery readings earn no bonus",
			session: models.SessionEvent{
				DurationMinutes: intPtr(20),
				BatteryStartPct: floatPtr(50),
				BatteryEndPct:   floatPtr(50),
			},
			want: 70,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := QualityScore(&tc.session)
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			if got < 0 || got > 100 {
				t.Fatalf("score %d out of bounds", got)
			}
		})
	}
}
