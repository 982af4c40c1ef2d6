package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"repscore/internal/app"
	"repscore/internal/domain"
)

func newReconciler(t *testing.T, repo *memRepo) (*app.Reconciler, *app.SnapshotService) {
	t.Helper()
	snaps := newSnapshotService(t, repo, nil, nil)
	return app.NewReconciler(repo, snaps, 4), snaps
}

func row(line int, name string, readings map[domain.Source]domain.RawReading) domain.ExternalRow {
	return domain.ExternalRow{Line: line, Name: name, Readings: readings}
}

func TestReconcile_RowIndependence(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)

	rows := []domain.ExternalRow{
		row(1, "Alpha Inn", map[domain.Source]domain.RawReading{domain.SourceBooking: reading(8.0, 50)}),
		row(2, "Broken Lodge", map[domain.Source]domain.RawReading{domain.SourceGoogle: reading(-1.0, 10)}),
		row(3, "Gamma Suites", map[domain.Source]domain.RawReading{domain.SourceExpedia: reading(7.2, 30)}),
	}

	report, err := rec.Reconcile(context.Background(), rows)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Total() != 3 || report.Created != 2 || report.Rejected != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Results[1].Outcome != domain.OutcomeRejected || report.Results[1].Reason == "" {
		t.Fatalf("row 2 should be rejected with a reason: %+v", report.Results[1])
	}

	// The rejected row left no trace.
	if got, _ := repo.FindHotelsByName(context.Background(), domain.NameKey("Broken Lodge")); len(got) != 0 {
		t.Fatalf("rejected row must not create a hotel")
	}
}

func TestReconcile_Outcomes(t *testing.T) {
	repo := newMemRepo()
	rec, snaps := newReconciler(t, repo)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := row(1, "Alpha Inn", map[domain.Source]domain.RawReading{domain.SourceBooking: reading(8.0, 50)})
	first.CollectedAt = &at

	report, err := rec.Reconcile(ctx, []domain.ExternalRow{first})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Results[0].Outcome != domain.OutcomeCreated {
		t.Fatalf("new hotel should report created, got %s", report.Results[0].Outcome)
	}
	hotelID := report.Results[0].HotelID

	// Re-importing the identical row dedupes the snapshot: updated.
	report, _ = rec.Reconcile(ctx, []domain.ExternalRow{first})
	if report.Results[0].Outcome != domain.OutcomeUpdated {
		t.Fatalf("identical re-import should report updated, got %s", report.Results[0].Outcome)
	}

	// Fresh readings for a known hotel: snapshot-added.
	next := at.AddDate(0, 0, 1)
	second := row(1, "Alpha Inn", map[domain.Source]domain.RawReading{domain.SourceBooking: reading(8.6, 55)})
	second.CollectedAt = &next
	report, _ = rec.Reconcile(ctx, []domain.ExternalRow{second})
	if report.Results[0].Outcome != domain.OutcomeSnapshotAdded {
		t.Fatalf("new readings should report snapshot-added, got %s", report.Results[0].Outcome)
	}

	hist, _ := snaps.History(ctx, hotelID)
	if len(hist) != 2 {
		t.Fatalf("expected 2 snapshots after 3 imports, got %d", len(hist))
	}
}

func TestReconcile_NegativeCountRejected(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)

	score, count := 4.0, -42
	bad := row(1, "Alpha Inn", map[domain.Source]domain.RawReading{
		domain.SourceGoogle: {Score: &score, Count: &count},
	})
	report, err := rec.Reconcile(context.Background(), []domain.ExternalRow{bad})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Results[0].Outcome != domain.OutcomeRejected {
		t.Fatalf("negative count must reject the row, got %s", report.Results[0].Outcome)
	}
	if !strings.Contains(report.Results[0].Reason, "count") {
		t.Fatalf("reason should name the count: %+v", report.Results[0])
	}
	// Validation happens before any mutation.
	if got, _ := repo.FindHotelsByName(context.Background(), domain.NameKey("Alpha Inn")); len(got) != 0 {
		t.Fatalf("rejected row must not create a hotel")
	}
}

func TestReconcile_NameRequired(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)

	report, err := rec.Reconcile(context.Background(), []domain.ExternalRow{row(1, "   ", nil)})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Rejected != 1 || !strings.Contains(report.Results[0].Reason, "name") {
		t.Fatalf("blank name must reject: %+v", report.Results[0])
	}
}

func TestReconcile_AmbiguousBusinessKey(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)
	ctx := context.Background()

	mustCreate := func(h domain.Hotel) {
		if _, err := repo.CreateHotel(ctx, h); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	mustCreate(domain.Hotel{Name: "Harbor View", City: ptr("Lisbon")})
	mustCreate(domain.Hotel{Name: "Harbor View", City: ptr("Porto")})

	// Without a scope the key stays ambiguous.
	report, _ := rec.Reconcile(ctx, []domain.ExternalRow{row(1, "Harbor View", nil)})
	if report.Results[0].Outcome != domain.OutcomeRejected {
		t.Fatalf("ambiguous row must reject, got %s", report.Results[0].Outcome)
	}

	// A city scope narrows it to one hotel.
	scoped := row(2, "Harbor View", nil)
	scoped.City = ptr("Porto")
	scoped.Brand = ptr("Seaside")
	report, _ = rec.Reconcile(ctx, []domain.ExternalRow{scoped})
	if report.Results[0].Outcome != domain.OutcomeUpdated {
		t.Fatalf("scoped row should update, got %+v", report.Results[0])
	}
	h, _ := repo.GetHotel(ctx, report.Results[0].HotelID)
	if h.Brand == nil || *h.Brand != "Seaside" {
		t.Fatalf("attribute overlay lost: %+v", h)
	}
	if h.City == nil || *h.City != "Porto" {
		t.Fatalf("scoped to the wrong hotel: %+v", h)
	}
}

func TestReconcile_MergeNeverClearsAttributes(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)
	ctx := context.Background()

	seed := row(1, "Alpha Inn", nil)
	seed.City = ptr("Austin")
	seed.Keys = ptr(120)
	if report, _ := rec.Reconcile(ctx, []domain.ExternalRow{seed}); report.Created != 1 {
		t.Fatalf("seed row should create")
	}

	// Second row names the hotel but omits every attribute.
	report, _ := rec.Reconcile(ctx, []domain.ExternalRow{row(2, "Alpha Inn", nil)})
	h, _ := repo.GetHotel(ctx, report.Results[0].HotelID)
	if h.City == nil || *h.City != "Austin" || h.Keys == nil || *h.Keys != 120 {
		t.Fatalf("absent row fields must not clear stored values: %+v", h)
	}
}

func TestReconcile_CancelledContextRejectsRemainder(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newReconciler(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []domain.ExternalRow{
		row(1, "Alpha Inn", nil),
		row(2, "Beta Inn", nil),
	}
	report, err := rec.Reconcile(ctx, rows)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if report.Rejected != 2 {
		t.Fatalf("unprocessed rows must be reported rejected: %+v", report)
	}
	for _, res := range report.Results {
		if !strings.Contains(res.Reason, "context") {
			t.Fatalf("rejection reason should name the cancellation: %+v", res)
		}
	}
}
