package store

import (
	"sync"

	"github.com/nimbusline/weatherline/internal/domain"
)

// WeatherStore holds the live weather record set. It is list-based: records
// keep their insertion order, duplicate location keys accumulate across
// provisioning calls, and Find resolves a key to the first matching record.
// Reads take the shared lock so they see either the state before or after an
// append, never a partially applied batch.
type WeatherStore struct {
	mu      sync.RWMutex
	records []domain.WeatherRecord
}

// NewWeatherStore creates a store seeded with the given records.
func NewWeatherStore(seed []domain.WeatherRecord) *WeatherStore {
	s := &WeatherStore{}
	s.records = append(s.records, seed...)
	return s
}

// Find returns the first record whose location key matches exactly.
func (s *WeatherStore) Find(location string) (domain.WeatherRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Location == location {
			return rec, true
		}
	}
	return domain.WeatherRecord{}, false
}

// AllRecords returns a snapshot of every record in insertion order.
func (s *WeatherStore) AllRecords() []domain.WeatherRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WeatherRecord, len(s.records))
	copy(out, s.records)
	return out
}

// AppendAll adds records without checking for key collisions. Concurrent
// appends are serialized; existing entries are never revised.
func (s *WeatherStore) AppendAll(records []domain.WeatherRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
}

// Len returns the number of stored records.
func (s *WeatherStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
