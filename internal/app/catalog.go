package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"repscore/internal/csvio"
	"repscore/internal/domain"
)

// CatalogService covers hotel registration, edits, soft deletion, and the
// full-catalog export.
type CatalogService struct {
	repo      domain.HotelRepository
	snapshots *SnapshotService
}

func NewCatalogService(r domain.HotelRepository, s *SnapshotService) *CatalogService {
	return &CatalogService{repo: r, snapshots: s}
}

// Register creates a hotel. A hotel with the same name and the same
// city/state scope already in the catalog is a duplicate.
func (s *CatalogService) Register(ctx context.Context, h domain.Hotel) (domain.Hotel, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return domain.Hotel{}, errNameRequired
	}
	existing, err := s.repo.FindHotelsByName(ctx, domain.NameKey(h.Name))
	if err != nil {
		return domain.Hotel{}, err
	}
	for _, e := range existing {
		if e.MatchesScope(h.City, h.State) {
			return domain.Hotel{}, &domain.DuplicateKeyError{Name: h.Name, Matches: len(existing)}
		}
	}
	id, err := s.repo.CreateHotel(ctx, h)
	if err != nil {
		return domain.Hotel{}, err
	}
	h.ID = id
	return h, nil
}

func (s *CatalogService) Update(ctx context.Context, h domain.Hotel) (domain.Hotel, error) {
	if strings.TrimSpace(h.Name) == "" {
		return domain.Hotel{}, errNameRequired
	}
	if _, err := s.repo.GetHotel(ctx, h.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Hotel{}, &domain.UnknownHotelError{HotelID: h.ID}
		}
		return domain.Hotel{}, err
	}
	if err := s.repo.UpdateHotel(ctx, h); err != nil {
		return domain.Hotel{}, err
	}
	return h, nil
}

// Delete soft-deletes: the hotel drops out of listings, name resolution,
// and all groups, but its snapshot history stays intact for audit.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetHotel(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.UnknownHotelError{HotelID: id}
		}
		return err
	}
	return s.repo.SoftDeleteHotel(ctx, id)
}

func (s *CatalogService) Get(ctx context.Context, id int64) (domain.Hotel, error) {
	h, err := s.repo.GetHotel(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Hotel{}, &domain.UnknownHotelError{HotelID: id}
		}
		return domain.Hotel{}, err
	}
	return h, nil
}

func (s *CatalogService) List(ctx context.Context) ([]domain.Hotel, error) {
	return s.repo.ListHotels(ctx)
}

// Export writes the whole catalog (latest snapshot per hotel) as CSV.
func (s *CatalogService) Export(ctx context.Context, w io.Writer) error {
	hotels, err := s.repo.ListHotels(ctx)
	if err != nil {
		return err
	}
	cw, err := csvio.NewWriter(w)
	if err != nil {
		return err
	}
	for _, h := range hotels {
		latest, err := s.snapshots.Latest(ctx, h.ID)
		if err != nil {
			return err
		}
		if err := cw.WriteRow(h, latest); err != nil {
			return err
		}
	}
	return cw.Flush()
}
