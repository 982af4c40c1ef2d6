package domain

import (
	"context"
	"time"
)

type HotelRepository interface {
	// Hotel write paths
	CreateHotel(ctx context.Context, h Hotel) (int64, error)
	UpdateHotel(ctx context.Context, h Hotel) error
	SoftDeleteHotel(ctx context.Context, id int64) error

	// Hotel read paths
	GetHotel(ctx context.Context, id int64) (Hotel, error)
	ListHotels(ctx context.Context) ([]Hotel, error)
	// FindHotelsByName matches on NameKey and excludes deleted hotels.
	FindHotelsByName(ctx context.Context, nameKey string) ([]Hotel, error)

	// Snapshot paths. InsertSnapshot assigns the ID, keeps the hotel's
	// latest pointer current within the same transaction, and never
	// mutates earlier snapshots.
	InsertSnapshot(ctx context.Context, s Snapshot) (Snapshot, error)
	LatestSnapshot(ctx context.Context, hotelID int64) (*Snapshot, error)
	ListSnapshots(ctx context.Context, hotelID int64) ([]Snapshot, error)
	ListSnapshotsBetween(ctx context.Context, hotelID int64, from, to time.Time) ([]Snapshot, error)

	// Groups
	CreateGroup(ctx context.Context, g Group) (int64, error)
	UpdateGroup(ctx context.Context, g Group) error
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// Collector is the shell's review collector: it fetches one raw reading
// per source for a hotel. Missing sources are simply absent from the map.
type Collector interface {
	Fetch(ctx context.Context, h Hotel) (map[Source]RawReading, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// GroupRow is the projection of one group member: hotel attributes joined
// with its latest snapshot. Score fields stay nil for members with no
// snapshot yet.
type GroupRow struct {
	Hotel      Hotel
	Normalized map[Source]*float64
	Composite  *float64
	Latest     *Snapshot
}
