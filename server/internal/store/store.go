package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sensorsight/sensorsight/pkg/types"
)

// DefaultTrendSize is the number of health points kept per sensor.
const DefaultTrendSize = 120

// Entry is a snapshot together with the time it was last received.
type Entry struct {
	Snapshot  *types.SensorSnapshot
	UpdatedAt time.Time
}

// TrendPoint is one received health/RUL observation.
type TrendPoint struct {
	At             time.Time `json:"at"`
	HealthScore    int       `json:"health_score"`
	CompositeScore float64   `json:"composite_score"`
	RUL            int       `json:"rul"`
	RULStatus      string    `json:"rul_status"`
	Temperature    float64   `json:"temperature"`
	NoiseLevel     float64   `json:"noise_level"`
}

// Store is a thread-safe in-memory snapshot store, keyed by sensor_id.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL. A TTL of zero disables expiry.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*Entry
	trends map[string][]TrendPoint // oldest first, capped at trendSize
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests

	trendSize int
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data:      make(map[string]*Entry),
		trends:    make(map[string][]TrendPoint),
		ttl:       ttl,
		now:       time.Now,
		trendSize: DefaultTrendSize,
	}
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores or replaces the snapshot for snap.SensorID and appends a trend
// point. Failed-scrape snapshots replace the entry but add no trend point.
// Callers must not modify snap after calling Put.
func (s *Store) Put(snap *types.SensorSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.data[snap.SensorID] = &Entry{Snapshot: snap, UpdatedAt: now}

	if snap.ErrorMessage != "" {
		return
	}
	tr := s.trends[snap.SensorID]
	if len(tr) >= s.trendSize {
		tr = append(tr[:0], tr[len(tr)-s.trendSize+1:]...)
	}
	s.trends[snap.SensorID] = append(tr, TrendPoint{
		At:             now,
		HealthScore:    snap.HealthScore,
		CompositeScore: snap.CompositeScore,
		RUL:            snap.RUL,
		RULStatus:      snap.RULStatus,
		Temperature:    snap.Latest.Temperature,
		NoiseLevel:     snap.Latest.NoiseLevel,
	})
}

// Get returns the Entry for the given sensor ID and a boolean indicating
// whether an entry was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(sensorID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sensorID]
	return e, ok
}

// Live is Get restricted to entries within the TTL.
func (s *Store) Live(sensorID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sensorID]
	if !ok || !s.fresh(e, s.now()) {
		return nil, false
	}
	return e, true
}

// Trend returns a copy of the recent trend points for a sensor, oldest first.
func (s *Store) Trend(sensorID string) []TrendPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr := s.trends[sensorID]
	out := make([]TrendPoint, len(tr))
	copy(out, tr)
	return out
}

// List returns all entries whose UpdatedAt is within the TTL, sorted by
// sensor ID. Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.fresh(e, now) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot.SensorID < out[j].Snapshot.SensorID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries (and their trends) whose UpdatedAt is older than now
// minus TTL. It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !s.fresh(e, now) {
			delete(s.data, id)
			delete(s.trends, id)
			removed++
		}
	}
	return removed
}

func (s *Store) fresh(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled and returns at once when expiry is disabled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale snapshots", "count", n)
			}
		}
	}
}
