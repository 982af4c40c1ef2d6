package scoring

import (
	"math"

	"repscore/internal/domain"
)

// DefaultWeights weighs every known source equally.
func DefaultWeights() map[domain.Source]float64 {
	w := make(map[domain.Source]float64, len(domain.KnownSources()))
	for _, src := range domain.KnownSources() {
		w[src] = 1
	}
	return w
}

// ValidateWeights checks a caller-supplied weight map: every known source
// must carry a positive, finite weight.
func ValidateWeights(weights map[domain.Source]float64) error {
	for _, src := range domain.KnownSources() {
		w, ok := weights[src]
		if !ok {
			return &domain.InvalidWeightError{Source: src, Reason: "missing"}
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &domain.InvalidWeightError{Source: src, Weight: w, Reason: "not finite"}
		}
		if w <= 0 {
			return &domain.InvalidWeightError{Source: src, Weight: w, Reason: "not positive"}
		}
	}
	return nil
}

// Composite computes the weighted mean of the present normalized values.
// Weights of absent sources drop out of both numerator and denominator, so
// coverage gaps re-normalize instead of dragging the average down. Returns
// nil when no source has data: the engine makes no composite claim rather
// than reporting zero.
func Composite(readings map[domain.Source]domain.Reading, weights map[domain.Source]float64) (*float64, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	var sum, total float64
	for _, src := range domain.KnownSources() {
		rd := readings[src]
		if rd.Normalized == nil {
			continue
		}
		w := weights[src]
		sum += *rd.Normalized * w
		total += w
	}
	if total == 0 {
		return nil, nil
	}
	v := sum / total
	return &v, nil
}
