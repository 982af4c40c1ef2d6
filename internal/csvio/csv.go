// Package csvio reads and writes the tabular import/export row shape.
//
// Column contract (stable order):
//
//	name, city, state, keys, kind, brand, parent,
//	<source>_score, <source>_count, <source>_normalized  (per known source),
//	weighted_average
//
// Derived columns (*_normalized, weighted_average) are output-only: they
// are written on export and ignored on import so stale or forged
// composites can never enter the store.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"repscore/internal/domain"
	"repscore/internal/scoring"
)

// Headers returns the export header row.
func Headers() []string {
	h := []string{"name", "city", "state", "keys", "kind", "brand", "parent"}
	for _, src := range domain.KnownSources() {
		h = append(h,
			string(src)+"_score",
			string(src)+"_count",
			string(src)+"_normalized",
		)
	}
	return append(h, "weighted_average")
}

// Parse reads header-labeled CSV into ExternalRows. Column order is free;
// headers are matched case-insensitively with spaces folded to
// underscores. Rows are returned even when individually malformed; the
// reconciler judges each row on its own.
//
// Recognized beyond the export contract: <source>_name columns (display
// names) and collected_at (RFC 3339 or YYYY-MM-DD) for historical imports.
func Parse(r io.Reader) ([]domain.ExternalRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeHeader(h)] = i
	}

	var rows []domain.ExternalRow
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++
		row := domain.ExternalRow{Line: line}
		row.Name = strings.TrimSpace(field(rec, idx, "name"))
		row.City = optStr(field(rec, idx, "city"))
		row.State = optStr(field(rec, idx, "state"))
		row.Keys = optInt(field(rec, idx, "keys"))
		row.Kind = optStr(field(rec, idx, "kind"))
		row.Brand = optStr(field(rec, idx, "brand"))
		row.Parent = optStr(field(rec, idx, "parent"))

		for _, src := range domain.KnownSources() {
			rr := domain.RawReading{
				Score: optFloat(field(rec, idx, string(src)+"_score")),
				Count: optInt(field(rec, idx, string(src)+"_count")),
			}
			if rr.Score != nil || rr.Count != nil {
				if row.Readings == nil {
					row.Readings = make(map[domain.Source]domain.RawReading, 4)
				}
				row.Readings[src] = rr
			}
			if n := strings.TrimSpace(field(rec, idx, string(src)+"_name")); n != "" {
				if row.SourceNames == nil {
					row.SourceNames = make(map[domain.Source]string, 4)
				}
				row.SourceNames[src] = n
			}
		}

		if ts := strings.TrimSpace(field(rec, idx, "collected_at")); ts != "" {
			if at, ok := parseTime(ts); ok {
				row.CollectedAt = &at
			}
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// Writer serializes group/catalog projections back into the row contract.
type Writer struct {
	cw *csv.Writer
}

func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers()); err != nil {
		return nil, err
	}
	return &Writer{cw: cw}, nil
}

// WriteRow emits one hotel with its latest snapshot. A nil snapshot leaves
// every score field empty, not "0" and not the literal "null".
func (w *Writer) WriteRow(h domain.Hotel, latest *domain.Snapshot) error {
	rec := []string{
		h.Name,
		derefStr(h.City),
		derefStr(h.State),
		fmtInt(h.Keys),
		derefStr(h.Kind),
		derefStr(h.Brand),
		derefStr(h.Parent),
	}
	for _, src := range domain.KnownSources() {
		var rd domain.Reading
		if latest != nil {
			rd = latest.Readings[src]
		}
		if rd.Absent() {
			rec = append(rec, "", "", "")
			continue
		}
		rec = append(rec, fmtFloat(rd.Score), fmtInt(rd.Count), fmtRounded(rd.Normalized))
	}
	if latest != nil {
		rec = append(rec, fmtRounded(latest.Composite))
	} else {
		rec = append(rec, "")
	}
	return w.cw.Write(rec)
}

func (w *Writer) Flush() error {
	w.cw.Flush()
	return w.cw.Error()
}

// ---- field helpers ----

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func field(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func optStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// optFloat parses a number that may carry commas, spaces, or "n/a".
// Unparseable values are treated as absent, matching partial-row
// tolerance; genuinely invalid readings (negative scores) parse fine and
// are rejected later by normalization.
func optFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func optInt(s string) *int {
	f := optFloat(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func fmtInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func fmtFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func fmtRounded(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(scoring.Round2(*p), 'f', -1, 64)
}
