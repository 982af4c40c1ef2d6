package domain

import "time"

// ExternalRow is one externally supplied record (CSV import or collector
// result) addressed by business key. All fields except Name are optional;
// presence is expressed with pointers, never with zero sentinels.
type ExternalRow struct {
	Line int // position in the input, for reporting

	Name   string
	City   *string
	State  *string
	Keys   *int
	Kind   *string
	Brand  *string
	Parent *string

	SourceNames map[Source]string

	Readings map[Source]RawReading

	// CollectedAt is the nominal measurement time; nil means "now".
	CollectedAt *time.Time
}

// HasReadings reports whether the row carries any snapshot data.
func (r ExternalRow) HasReadings() bool {
	for _, rr := range r.Readings {
		if rr.Score != nil || rr.Count != nil {
			return true
		}
	}
	return false
}

// Outcome classifies what a reconciliation did with one row.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeUpdated       Outcome = "updated"
	OutcomeSnapshotAdded Outcome = "snapshot-added"
	OutcomeRejected      Outcome = "rejected"
)

// RowResult is the per-row verdict inside a ReconciliationReport.
type RowResult struct {
	Line    int
	Name    string
	Outcome Outcome
	HotelID int64  // zero when rejected before resolution
	Reason  string // set when rejected
}

// ReconciliationReport lists every row's outcome; one bad row never hides
// the rest of the batch.
type ReconciliationReport struct {
	Results []RowResult

	Created        int
	Updated        int
	SnapshotsAdded int
	Rejected       int
}

func (r *ReconciliationReport) Add(res RowResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSnapshotAdded:
		r.SnapshotsAdded++
	case OutcomeRejected:
		r.Rejected++
	}
}

// Total is the number of rows processed.
func (r *ReconciliationReport) Total() int { return len(r.Results) }
