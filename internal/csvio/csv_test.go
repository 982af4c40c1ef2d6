package csvio_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"repscore/internal/csvio"
	"repscore/internal/domain"
)

func pstr(s string) *string     { return &s }
func pint(i int) *int           { return &i }
func pfloat(f float64) *float64 { return &f }

func TestParse_HeaderDrivenAndTolerant(t *testing.T) {
	in := strings.Join([]string{
		"Name,City,State,google_score,google_count,Booking Score,booking_count,weighted_average,google_normalized",
		`Grand Plaza,Austin,TX,"4.5","1,234",8.7,950,9.99,9.99`,
		"Harbor Inn,,,n/a,,,,,",
	}, "\n")

	rows, err := csvio.Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %d", len(rows))
	}

	r := rows[0]
	if r.Name != "Grand Plaza" || *r.City != "Austin" || *r.State != "TX" {
		t.Fatalf("attrs: %+v", r)
	}
	g := r.Readings[domain.SourceGoogle]
	if g.Score == nil || *g.Score != 4.5 {
		t.Fatalf("google score: %+v", g)
	}
	if g.Count == nil || *g.Count != 1234 {
		t.Fatalf("comma-grouped count must parse: %+v", g)
	}
	b := r.Readings[domain.SourceBooking]
	if b.Score == nil || *b.Score != 8.7 || *b.Count != 950 {
		t.Fatalf("booking: %+v", b)
	}
	// Derived columns never come in through import.
	if r.HasReadings() && len(r.Readings) != 2 {
		t.Fatalf("unexpected readings: %+v", r.Readings)
	}

	if rows[1].HasReadings() {
		t.Fatalf("n/a and blanks must read as absent: %+v", rows[1].Readings)
	}
	if rows[1].City != nil {
		t.Fatalf("blank city must be nil, got %q", *rows[1].City)
	}
}

func TestParse_CollectedAt(t *testing.T) {
	in := "name,google_score,collected_at\nOld Mill,4.0,2024-03-01\n"
	rows, err := csvio.Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	at := rows[0].CollectedAt
	if at == nil || !at.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("collected_at: %v", at)
	}
}

func TestWriter_StableColumnsAndEmptyNulls(t *testing.T) {
	var buf bytes.Buffer
	w, err := csvio.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	h := domain.Hotel{Name: "Grand Plaza", City: pstr("Austin"), State: pstr("TX"), Keys: pint(120)}
	snap := &domain.Snapshot{
		HotelID: 1,
		Readings: map[domain.Source]domain.Reading{
			domain.SourceGoogle:  {Score: pfloat(4.5), Count: pint(1200), Normalized: pfloat(9)},
			domain.SourceBooking: {Score: pfloat(8.7), Count: pint(950), Normalized: pfloat(8.7)},
		},
		Composite: pfloat(8.8285714),
	}
	if err := w.WriteRow(h, snap); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.WriteRow(domain.Hotel{Name: "Harbor Inn"}, nil); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines: %v", lines)
	}
	wantHeader := "name,city,state,keys,kind,brand,parent," +
		"google_score,google_count,google_normalized," +
		"booking_score,booking_count,booking_normalized," +
		"expedia_score,expedia_count,expedia_normalized," +
		"tripadvisor_score,tripadvisor_count,tripadvisor_normalized," +
		"weighted_average"
	if lines[0] != wantHeader {
		t.Fatalf("header:\n got %s\nwant %s", lines[0], wantHeader)
	}
	if !strings.HasPrefix(lines[1], "Grand Plaza,Austin,TX,120,,,") {
		t.Fatalf("row: %s", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",8.83") {
		t.Fatalf("composite must round at the boundary: %s", lines[1])
	}
	// A member with no snapshot projects empty fields, never zeros.
	if strings.Contains(lines[2], "0") || strings.Contains(lines[2], "null") {
		t.Fatalf("empty snapshot row must stay empty: %s", lines[2])
	}
}

func TestRoundTrip_ExportThenParse(t *testing.T) {
	var buf bytes.Buffer
	w, err := csvio.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	h := domain.Hotel{Name: "Grand Plaza", City: pstr("Austin"), State: pstr("TX"), Brand: pstr("Plaza Co")}
	snap := &domain.Snapshot{
		Readings: map[domain.Source]domain.Reading{
			domain.SourceGoogle: {Score: pfloat(4.5), Count: pint(1200), Normalized: pfloat(9)},
		},
		Composite: pfloat(9),
	}
	if err := w.WriteRow(h, snap); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rows, err := csvio.Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := rows[0]
	if r.Name != h.Name || *r.City != "Austin" || *r.Brand != "Plaza Co" {
		t.Fatalf("attrs lost in round trip: %+v", r)
	}
	g := r.Readings[domain.SourceGoogle]
	if g.Score == nil || *g.Score != 4.5 || *g.Count != 1200 {
		t.Fatalf("readings lost in round trip: %+v", g)
	}
	if len(r.Readings) != 1 {
		t.Fatalf("derived columns must not resurface as readings: %+v", r.Readings)
	}
}
