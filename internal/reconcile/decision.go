// Package reconcile contains the pure decision core: the proximity
// matcher and the three-rule reconciliation engine. Nothing here does
// I/O; callers supply the camera's records and the classification
// result and apply the returned decision.
package reconcile

import (
	"github.com/sitewatch/sitewatch/internal/vision"
)

// Outcome is the terminal result of reconciling one upload.
type Outcome int

const (
	// OutcomeCreate starts a new tracked location: new record, new
	// twin document with fresh history.
	OutcomeCreate Outcome = iota

	// OutcomeOverwriteChanged overwrites the nearest record and flags
	// a major visual change.
	OutcomeOverwriteChanged

	// OutcomeOverwriteUnchanged overwrites the nearest record with no
	// change flagged (including byte-identical resubmissions).
	OutcomeOverwriteUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreate:
		return "create"
	case OutcomeOverwriteChanged:
		return "overwrite_changed"
	case OutcomeOverwriteUnchanged:
		return "overwrite_unchanged"
	}
	return "unknown"
}

// Decision is what the engine hands to the twin state writer.
type Decision struct {
	Outcome Outcome

	// TargetID is the record being overwritten; zero for OutcomeCreate.
	TargetID int64

	// DistanceMeters is the distance to the matched record; zero for
	// OutcomeCreate.
	DistanceMeters float64

	Classification vision.Classification
}

// Overwrites reports whether the decision targets an existing record.
func (d Decision) Overwrites() bool {
	return d.Outcome != OutcomeCreate
}
