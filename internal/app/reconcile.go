package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"repscore/internal/adapters/observability"
	"repscore/internal/domain"
	"repscore/internal/scoring"
)

var errNameRequired = errors.New("name required")

// Reconciler applies a batch of external rows as create/update operations
// against hotel and snapshot records. Rows are independent: one bad row is
// recorded as a rejection and never aborts the batch.
type Reconciler struct {
	repo      domain.HotelRepository
	snapshots *SnapshotService
	workers   int
}

func NewReconciler(r domain.HotelRepository, s *SnapshotService, workers int) *Reconciler {
	if workers <= 0 {
		workers = 4
	}
	return &Reconciler{repo: r, snapshots: s, workers: workers}
}

// Reconcile processes every row and reports a per-row outcome. Rows that
// resolve to different hotels run in parallel; rows sharing a business key
// apply sequentially in input order. Cancellation stops between rows:
// rows already applied stay committed, unprocessed rows are reported as
// rejected with the cancellation reason.
func (r *Reconciler) Reconcile(ctx context.Context, rows []domain.ExternalRow) (domain.ReconciliationReport, error) {
	results := make([]domain.RowResult, len(rows))

	// Partition by business key so same-hotel rows keep input order.
	type part struct{ indexes []int }
	order := make([]string, 0, len(rows))
	parts := make(map[string]*part, len(rows))
	for i, row := range rows {
		key := domain.NameKey(row.Name)
		p, ok := parts[key]
		if !ok {
			p = &part{}
			parts[key] = p
			order = append(order, key)
		}
		p.indexes = append(p.indexes, i)
	}

	// Each partition writes disjoint slots of results, so no lock is
	// needed around the slice.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, key := range order {
		p := parts[key]
		g.Go(func() error {
			for _, i := range p.indexes {
				if err := gctx.Err(); err != nil {
					results[i] = domain.RowResult{
						Line:    rows[i].Line,
						Name:    rows[i].Name,
						Outcome: domain.OutcomeRejected,
						Reason:  err.Error(),
					}
					continue
				}
				results[i] = r.applyRow(gctx, rows[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	var report domain.ReconciliationReport
	for _, res := range results {
		observability.ObserveReconcileRow(string(res.Outcome))
		report.Add(res)
	}
	return report, ctx.Err()
}

// applyRow is one committed unit: validation happens before any mutation,
// so a rejected row leaves no trace.
func (r *Reconciler) applyRow(ctx context.Context, row domain.ExternalRow) domain.RowResult {
	res := domain.RowResult{Line: row.Line, Name: row.Name}

	reject := func(err error) domain.RowResult {
		res.Outcome = domain.OutcomeRejected
		res.Reason = err.Error()
		return res
	}

	if domain.NameKey(row.Name) == "" {
		return reject(errNameRequired)
	}

	// Validate readings before touching the store.
	if row.HasReadings() {
		if _, err := scoring.NormalizeReadings(row.Readings); err != nil {
			return reject(err)
		}
	}

	hotel, created, err := r.resolve(ctx, row)
	if err != nil {
		return reject(err)
	}
	res.HotelID = hotel.ID

	snapshotAdded := false
	if row.HasReadings() {
		_, added, err := r.snapshots.AppendDeduped(ctx, hotel.ID, row.Readings, domain.MethodImport, row.CollectedAt)
		if err != nil {
			return reject(err)
		}
		snapshotAdded = added
	}

	switch {
	case created:
		res.Outcome = domain.OutcomeCreated
	case snapshotAdded:
		res.Outcome = domain.OutcomeSnapshotAdded
	default:
		res.Outcome = domain.OutcomeUpdated
	}
	return res
}

// resolve finds the hotel a row addresses, creating it when no existing
// hotel matches the business key. Ambiguity after city/state scoping is a
// DuplicateKeyError.
func (r *Reconciler) resolve(ctx context.Context, row domain.ExternalRow) (domain.Hotel, bool, error) {
	matches, err := r.repo.FindHotelsByName(ctx, domain.NameKey(row.Name))
	if err != nil {
		return domain.Hotel{}, false, err
	}
	if len(matches) > 1 {
		scoped := matches[:0:0]
		for _, h := range matches {
			if h.MatchesScope(row.City, row.State) {
				scoped = append(scoped, h)
			}
		}
		matches = scoped
		if len(matches) > 1 {
			return domain.Hotel{}, false, &domain.DuplicateKeyError{Name: row.Name, Matches: len(matches)}
		}
	}

	if len(matches) == 0 {
		h := hotelFromRow(row)
		id, err := r.repo.CreateHotel(ctx, h)
		if err != nil {
			return domain.Hotel{}, false, err
		}
		h.ID = id
		return h, true, nil
	}

	h := mergeRow(matches[0], row)
	if err := r.repo.UpdateHotel(ctx, h); err != nil {
		return domain.Hotel{}, false, err
	}
	return h, false, nil
}

func hotelFromRow(row domain.ExternalRow) domain.Hotel {
	return domain.Hotel{
		Name:        row.Name,
		City:        row.City,
		State:       row.State,
		Keys:        row.Keys,
		Kind:        row.Kind,
		Brand:       row.Brand,
		Parent:      row.Parent,
		SourceNames: row.SourceNames,
	}
}

// mergeRow overlays the row's present fields onto the stored hotel;
// absent fields never clear stored values.
func mergeRow(h domain.Hotel, row domain.ExternalRow) domain.Hotel {
	if row.City != nil {
		h.City = row.City
	}
	if row.State != nil {
		h.State = row.State
	}
	if row.Keys != nil {
		h.Keys = row.Keys
	}
	if row.Kind != nil {
		h.Kind = row.Kind
	}
	if row.Brand != nil {
		h.Brand = row.Brand
	}
	if row.Parent != nil {
		h.Parent = row.Parent
	}
	if len(row.SourceNames) > 0 {
		if h.SourceNames == nil {
			h.SourceNames = make(map[domain.Source]string, len(row.SourceNames))
		}
		for src, name := range row.SourceNames {
			h.SourceNames[src] = name
		}
	}
	return h
}
