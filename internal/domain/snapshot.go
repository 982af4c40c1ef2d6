package domain

import "time"

// Source is one external review/rating provider.
type Source string

const (
	SourceGoogle      Source = "google"
	SourceBooking     Source = "booking"
	SourceExpedia     Source = "expedia"
	SourceTripadvisor Source = "tripadvisor"
)

// KnownSources returns all providers in stable order. Column order in
// exports and default weighting both follow this order.
func KnownSources() []Source {
	return []Source{SourceGoogle, SourceBooking, SourceExpedia, SourceTripadvisor}
}

// NativeMax is the upper bound of the provider's own rating scale.
func (s Source) NativeMax() float64 {
	switch s {
	case SourceGoogle, SourceTripadvisor:
		return 5
	default:
		return 10
	}
}

// Method records how a snapshot's readings were obtained.
type Method string

const (
	MethodManual      Method = "manual"
	MethodImport      Method = "import"
	MethodLiveCollect Method = "live-collect"
)

// RawReading is one source's measurement as supplied by a caller, before
// normalization. A nil Score means the source had no data; zero is a real
// rating, never an absence marker.
type RawReading struct {
	Score *float64
	Count *int
}

// Reading is a RawReading plus its derived normalized value.
type Reading struct {
	Score      *float64
	Count      *int
	Normalized *float64
}

// Absent reports whether the source had no data at collection time.
func (r Reading) Absent() bool { return r.Score == nil && r.Count == nil }

// Equal compares the raw fields only; normalized values are derived and
// excluded so recomputation can never break import dedupe.
func (r Reading) Equal(o Reading) bool {
	return eqF(r.Score, o.Score) && eqI(r.Count, o.Count)
}

func eqF(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqI(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Snapshot is one immutable measurement event for a hotel. Snapshots are
// append-only; corrections are modeled as new snapshots.
type Snapshot struct {
	ID          int64
	HotelID     int64
	CollectedAt time.Time
	Method      Method
	Readings    map[Source]Reading
	// Composite is nil iff every reading is absent.
	Composite *float64
}

// SameReadings reports whether both snapshots carry identical raw readings
// for every known source.
func (s Snapshot) SameReadings(o Snapshot) bool {
	for _, src := range KnownSources() {
		if !s.Readings[src].Equal(o.Readings[src]) {
			return false
		}
	}
	return true
}
