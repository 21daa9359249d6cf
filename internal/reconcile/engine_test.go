package reconcile

import (
	"reflect"
	"testing"

	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/vision"
)

func TestDecide_Table(t *testing.T) {
	match := &Match{Record: &capture.Record{ID: 4}, DistanceMeters: 6.2}

	cases := []struct {
		name        string
		match       *Match
		cls         vision.Classification
		wantOutcome Outcome
		wantTarget  int64
	}{
		{
			name:        "within radius with major change",
			match:       match,
			cls:         vision.Classification{MajorChange: true, Reason: "missing"},
			wantOutcome: OutcomeOverwriteChanged,
			wantTarget:  4,
		},
		{
			name:        "within radius without major change",
			match:       match,
			cls:         vision.Classification{MajorChange: false},
			wantOutcome: OutcomeOverwriteUnchanged,
			wantTarget:  4,
		},
		{
			name:        "within radius byte-identical",
			match:       match,
			cls:         vision.Classification{MajorChange: false, ByteIdentical: true},
			wantOutcome: OutcomeOverwriteUnchanged,
			wantTarget:  4,
		},
		{
			name:        "no match creates new",
			match:       nil,
			cls:         vision.Classification{Caption: "a bench"},
			wantOutcome: OutcomeCreate,
			wantTarget:  0,
		},
		{
			// The proximity gate comes first: a change flag without a
			// match cannot overwrite anything.
			name:        "no match ignores change flag",
			match:       nil,
			cls:         vision.Classification{MajorChange: true},
			wantOutcome: OutcomeCreate,
			wantTarget:  0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.match, tc.cls)
			if d.Outcome != tc.wantOutcome {
				t.Errorf("Outcome = %v, want %v", d.Outcome, tc.wantOutcome)
			}
			if d.TargetID != tc.wantTarget {
				t.Errorf("TargetID = %d, want %d", d.TargetID, tc.wantTarget)
			}
			if d.Overwrites() != (tc.wantOutcome != OutcomeCreate) {
				t.Errorf("Overwrites() = %v", d.Overwrites())
			}
		})
	}
}

func TestDecide_CreateClearsChangeFlags(t *testing.T) {
	// A describe-only response may still carry a change claim; without a
	// match there is nothing it could have changed from.
	cls := vision.Classification{MajorChange: true, Reason: "damaged", Caption: "a bench"}

	d := Decide(nil, cls)
	if d.Outcome != OutcomeCreate {
		t.Fatalf("Outcome = %v, want %v", d.Outcome, OutcomeCreate)
	}
	if d.Classification.MajorChange {
		t.Error("MajorChange survived the create decision")
	}
	if d.Classification.Reason != "" {
		t.Errorf("Reason = %q, want empty", d.Classification.Reason)
	}
	if d.Classification.Caption != "a bench" {
		t.Errorf("Caption = %q, caption must be kept", d.Classification.Caption)
	}
}

func TestDecide_IsDeterministic(t *testing.T) {
	match := &Match{Record: &capture.Record{ID: 1}, DistanceMeters: 3}
	cls := vision.Classification{MajorChange: true, Reason: "damaged"}

	first := Decide(match, cls)
	for i := 0; i < 10; i++ {
		if got := Decide(match, cls); !reflect.DeepEqual(got, first) {
			t.Fatalf("Decide not deterministic: %+v vs %+v", got, first)
		}
	}
}
