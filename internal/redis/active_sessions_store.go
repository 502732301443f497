package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the cached shape of an in-progress charging session, keyed
// by driver and vehicle so telemetry upserts can skip a table lookup.
type ActiveSession struct {
	SessionID int64  `json:"session_id"`
	DriverID  int64  `json:"driver_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
	ChargerID string `json:"charger_id"`
}

// Store manages the active session cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(driverID int64, vehicleID string) string {
	return fmt.Sprintf("rewards:active:%d:%s", driverID, vehicleID)
}

// Save caches the active session.
func (s *Store) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.DriverID, session.VehicleID), data, s.ttl).Err()
}

// Get returns the cached active session for the (driver, vehicle) pair.
func (s *Store) Get(ctx context.Context, driverID int64, vehicleID string) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(driverID, vehicleID)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the cached session once it ends.
func (s *Store) Delete(ctx context.Context, driverID int64, vehicleID string) error {
	return s.client.Del(ctx, s.key(driverID, vehicleID)).Err()
}
