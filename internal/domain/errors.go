package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// InvalidScoreError marks a raw score outside the source's domain
// (negative or non-finite). Values above the documented max are clamped,
// not rejected.
type InvalidScoreError struct {
	Source Source
	Raw    float64
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid %s score %v", e.Source, e.Raw)
}

// InvalidCountError marks a negative review count. Counts are either a
// non-negative integer or unknown.
type InvalidCountError struct {
	Source Source
	Count  int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("invalid %s review count %d", e.Source, e.Count)
}

// InvalidWeightError marks a bad composite weight configuration.
type InvalidWeightError struct {
	Source Source
	Weight float64
	Reason string
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("invalid weight for %s: %s", e.Source, e.Reason)
}

// UnknownHotelError marks a reference to a hotel that does not exist.
type UnknownHotelError struct {
	HotelID int64
}

func (e *UnknownHotelError) Error() string {
	return fmt.Sprintf("unknown hotel %d", e.HotelID)
}

// DuplicateKeyError marks ambiguous business-key resolution: more than one
// existing hotel matched a row's name (after city/state scoping).
type DuplicateKeyError struct {
	Name    string
	Matches int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%d hotels match name %q", e.Matches, e.Name)
}
