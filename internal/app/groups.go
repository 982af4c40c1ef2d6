package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"repscore/internal/csvio"
	"repscore/internal/domain"
)

var errGroupNameRequired = errors.New("group name required")

// GroupService projects named sets of hotels into report rows. A group's
// view is always derived live from current hotel state, never cached.
type GroupService struct {
	repo      domain.HotelRepository
	snapshots *SnapshotService
}

func NewGroupService(r domain.HotelRepository, s *SnapshotService) *GroupService {
	return &GroupService{repo: r, snapshots: s}
}

func (s *GroupService) Create(ctx context.Context, name string, hotelIDs []int64) (domain.Group, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Group{}, errGroupNameRequired
	}
	if err := s.checkMembers(ctx, hotelIDs); err != nil {
		return domain.Group{}, err
	}
	g := domain.Group{Name: strings.TrimSpace(name), HotelIDs: hotelIDs}
	id, err := s.repo.CreateGroup(ctx, g)
	if err != nil {
		return domain.Group{}, err
	}
	g.ID = id
	return g, nil
}

// Update replaces name and/or membership. Nil hotelIDs keeps the current
// membership; an empty non-nil slice clears it.
func (s *GroupService) Update(ctx context.Context, id int64, name *string, hotelIDs []int64) (domain.Group, error) {
	g, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return domain.Group{}, errGroupNameRequired
		}
		g.Name = strings.TrimSpace(*name)
	}
	if hotelIDs != nil {
		if err := s.checkMembers(ctx, hotelIDs); err != nil {
			return domain.Group{}, err
		}
		g.HotelIDs = hotelIDs
	}
	if err := s.repo.UpdateGroup(ctx, g); err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

func (s *GroupService) Get(ctx context.Context, id int64) (domain.Group, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *GroupService) List(ctx context.Context) ([]domain.Group, error) {
	return s.repo.ListGroups(ctx)
}

func (s *GroupService) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteGroup(ctx, id)
}

func (s *GroupService) checkMembers(ctx context.Context, hotelIDs []int64) error {
	for _, id := range hotelIDs {
		h, err := s.repo.GetHotel(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.UnknownHotelError{HotelID: id}
			}
			return err
		}
		if h.Deleted {
			return &domain.UnknownHotelError{HotelID: id}
		}
	}
	return nil
}

// Project joins group membership with each member's latest snapshot.
// Members with no snapshot yet keep nil score fields, never zero.
func (s *GroupService) Project(ctx context.Context, groupID int64) ([]domain.GroupRow, error) {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.GroupRow, 0, len(g.HotelIDs))
	for _, hid := range g.HotelIDs {
		h, err := s.repo.GetHotel(ctx, hid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // membership cleanup raced a delete
			}
			return nil, err
		}
		latest, err := s.snapshots.Latest(ctx, hid)
		if err != nil {
			return nil, err
		}
		row := domain.GroupRow{
			Hotel:      h,
			Normalized: make(map[domain.Source]*float64, len(domain.KnownSources())),
			Latest:     latest,
		}
		for _, src := range domain.KnownSources() {
			if latest != nil {
				row.Normalized[src] = latest.Readings[src].Normalized
			} else {
				row.Normalized[src] = nil
			}
		}
		if latest != nil {
			row.Composite = latest.Composite
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Export serializes the group projection into the tabular row contract.
// Reconciling the exported rows back in reproduces equivalent state.
func (s *GroupService) Export(ctx context.Context, groupID int64, w io.Writer) error {
	rows, err := s.Project(ctx, groupID)
	if err != nil {
		return err
	}
	cw, err := csvio.NewWriter(w)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.WriteRow(row.Hotel, row.Latest); err != nil {
			return err
		}
	}
	return cw.Flush()
}
