package reconcile

import (
	"github.com/sitewatch/sitewatch/internal/vision"
)

// Decide maps a proximity match and a classification onto one of the
// three outcomes. Proximity is the hard gate: without a within-radius
// match the classification is irrelevant and a new location is created.
// With a match, the classifier's major-change flag picks between the
// two overwrite outcomes. There is no "create despite proximity" path.
func Decide(match *Match, cls vision.Classification) Decision {
	if match == nil {
		// A new location has no prior capture to have changed from.
		cls.MajorChange = false
		cls.Reason = ""
		return Decision{
			Outcome:        OutcomeCreate,
			Classification: cls,
		}
	}

	outcome := OutcomeOverwriteUnchanged
	if cls.MajorChange {
		outcome = OutcomeOverwriteChanged
	}

	return Decision{
		Outcome:        outcome,
		TargetID:       match.Record.ID,
		DistanceMeters: match.DistanceMeters,
		Classification: cls,
	}
}
