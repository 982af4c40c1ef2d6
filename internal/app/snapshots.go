package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"repscore/internal/adapters/observability"
	"repscore/internal/domain"
	"repscore/internal/scoring"
)

// ErrNoLiveData is returned by Collect when every source came back empty.
// No snapshot is written in that case.
var ErrNoLiveData = errors.New("no source returned live data")

// SnapshotService owns the append-only snapshot history per hotel:
// normalization, composite computation, append, and the latest/history
// read paths.
type SnapshotService struct {
	repo      domain.HotelRepository
	cache     domain.Cache
	collector domain.Collector
	weights   map[domain.Source]float64
	cacheTTL  time.Duration
	now       func() time.Time

	locks sync.Map // hotel id -> *sync.Mutex
}

// NewSnapshotService validates the weight configuration up front; nil
// weights mean equal weighting across all known sources.
func NewSnapshotService(r domain.HotelRepository, c domain.Cache, col domain.Collector, weights map[domain.Source]float64, ttl time.Duration) (*SnapshotService, error) {
	if weights == nil {
		weights = scoring.DefaultWeights()
	}
	if err := scoring.ValidateWeights(weights); err != nil {
		return nil, err
	}
	return &SnapshotService{
		repo:      r,
		cache:     c,
		collector: col,
		weights:   weights,
		cacheTTL:  ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// hotelLock serializes appends for a single hotel. Appends for different
// hotels proceed in parallel.
func (s *SnapshotService) hotelLock(id int64) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Append normalizes the raw readings, computes the composite, and appends
// an immutable snapshot to the hotel's history. A nil timestamp means
// collection-time now.
func (s *SnapshotService) Append(ctx context.Context, hotelID int64, raw map[domain.Source]domain.RawReading, method domain.Method, at *time.Time) (domain.Snapshot, error) {
	snap, _, err := s.append(ctx, hotelID, raw, method, at, false)
	return snap, err
}

// AppendDeduped is Append with the import dedupe policy: if a snapshot
// with identical raw readings already exists for the same hotel on the
// same UTC day, nothing is written and the existing snapshot is returned
// with added=false.
func (s *SnapshotService) AppendDeduped(ctx context.Context, hotelID int64, raw map[domain.Source]domain.RawReading, method domain.Method, at *time.Time) (domain.Snapshot, bool, error) {
	return s.append(ctx, hotelID, raw, method, at, true)
}

func (s *SnapshotService) append(ctx context.Context, hotelID int64, raw map[domain.Source]domain.RawReading, method domain.Method, at *time.Time, dedupe bool) (domain.Snapshot, bool, error) {
	h, err := s.repo.GetHotel(ctx, hotelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Snapshot{}, false, &domain.UnknownHotelError{HotelID: hotelID}
		}
		return domain.Snapshot{}, false, err
	}
	if h.Deleted {
		return domain.Snapshot{}, false, &domain.UnknownHotelError{HotelID: hotelID}
	}

	readings, err := scoring.NormalizeReadings(raw)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	composite, err := scoring.Composite(readings, s.weights)
	if err != nil {
		return domain.Snapshot{}, false, err
	}

	ts := s.now()
	if at != nil {
		ts = at.UTC()
	}
	snap := domain.Snapshot{
		HotelID:     hotelID,
		CollectedAt: ts,
		Method:      method,
		Readings:    readings,
		Composite:   composite,
	}

	mu := s.hotelLock(hotelID)
	mu.Lock()
	defer mu.Unlock()

	if dedupe {
		day := ts.Truncate(24 * time.Hour)
		existing, err := s.repo.ListSnapshotsBetween(ctx, hotelID, day, day.Add(24*time.Hour))
		if err != nil {
			return domain.Snapshot{}, false, err
		}
		for _, e := range existing {
			if e.SameReadings(snap) {
				return e, false, nil
			}
		}
	}

	stored, err := s.repo.InsertSnapshot(ctx, snap)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	observability.ObserveSnapshotAppend(string(method))
	if s.cache != nil {
		_ = s.cache.Del(ctx, latestKey(hotelID))
	}
	return stored, true, nil
}

// Latest returns the hotel's most recent snapshot, or nil when the hotel
// has none yet.
func (s *SnapshotService) Latest(ctx context.Context, hotelID int64) (*domain.Snapshot, error) {
	if s.cache != nil {
		var snap domain.Snapshot
		if ok, _ := s.cache.Get(ctx, latestKey(hotelID), &snap); ok {
			return &snap, nil
		}
	}
	if _, err := s.repo.GetHotel(ctx, hotelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.UnknownHotelError{HotelID: hotelID}
		}
		return nil, err
	}
	snap, err := s.repo.LatestSnapshot(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if snap != nil && s.cache != nil {
		_ = s.cache.Set(ctx, latestKey(hotelID), *snap, int(s.cacheTTL.Seconds()))
	}
	return snap, nil
}

// History returns the full append-ordered history, oldest first.
func (s *SnapshotService) History(ctx context.Context, hotelID int64) ([]domain.Snapshot, error) {
	if _, err := s.repo.GetHotel(ctx, hotelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.UnknownHotelError{HotelID: hotelID}
		}
		return nil, err
	}
	return s.repo.ListSnapshots(ctx, hotelID)
}

// Collect runs one synchronous round trip against the shell's collector
// and appends the result as a live-collect snapshot. Transient collector
// failures surface to the caller; nothing is retried here.
func (s *SnapshotService) Collect(ctx context.Context, hotelID int64) (domain.Snapshot, error) {
	h, err := s.repo.GetHotel(ctx, hotelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Snapshot{}, &domain.UnknownHotelError{HotelID: hotelID}
		}
		return domain.Snapshot{}, err
	}
	if h.Deleted {
		return domain.Snapshot{}, &domain.UnknownHotelError{HotelID: hotelID}
	}

	raw, err := s.collector.Fetch(ctx, h)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect hotel %d: %w", hotelID, err)
	}
	present := false
	for _, rr := range raw {
		if rr.Score != nil {
			present = true
			break
		}
	}
	if !present {
		return domain.Snapshot{}, ErrNoLiveData
	}
	return s.Append(ctx, hotelID, raw, domain.MethodLiveCollect, nil)
}

func latestKey(hotelID int64) string {
	return fmt.Sprintf("latest:%d", hotelID)
}
