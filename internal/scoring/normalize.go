// Package scoring converts heterogeneous provider ratings onto a common
// 0–10 scale and combines them into a single weighted composite.
package scoring

import (
	"math"

	"repscore/internal/domain"
)

// Normalize rescales a raw score from the source's native scale onto
// [0, 10]. Values slightly above the documented max are provider noise and
// get clamped rather than rejected; negative or non-finite input fails
// with InvalidScoreError.
func Normalize(src domain.Source, raw float64) (float64, error) {
	if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, &domain.InvalidScoreError{Source: src, Raw: raw}
	}
	v := raw * (10 / src.NativeMax())
	if v > 10 {
		v = 10
	}
	return v, nil
}

// NormalizeReadings derives normalized values for every known source.
// Sources with no raw score keep a nil normalized value; review counts
// pass through untouched (they are display metadata, not arithmetic
// input) but must be non-negative when present.
func NormalizeReadings(raw map[domain.Source]domain.RawReading) (map[domain.Source]domain.Reading, error) {
	out := make(map[domain.Source]domain.Reading, len(domain.KnownSources()))
	for _, src := range domain.KnownSources() {
		rr := raw[src]
		if rr.Count != nil && *rr.Count < 0 {
			return nil, &domain.InvalidCountError{Source: src, Count: *rr.Count}
		}
		rd := domain.Reading{Score: rr.Score, Count: rr.Count}
		if rr.Score != nil {
			n, err := Normalize(src, *rr.Score)
			if err != nil {
				return nil, err
			}
			rd.Normalized = &n
		}
		out[src] = rd
	}
	return out, nil
}

// Round2 rounds for display at the boundary. Internal arithmetic keeps
// full precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
