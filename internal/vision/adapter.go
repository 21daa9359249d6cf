package vision

import (
	"bytes"
	"context"
	"log/slog"
)

// sceneSimilarityFloor forces a major change when the gateway reports a
// scene mismatch or low similarity even though it judged "no change".
const sceneSimilarityFloor = 0.65

// Classifier produces the normalized decision payload for one upload.
type Classifier interface {
	Classify(ctx context.Context, candidate, prior []byte, priorObjects []Object) (Classification, error)
}

// Adapter wraps the remote gateway with the local rules the pipeline
// relies on: byte-identical short-circuit, reason normalization, and
// the scene-mismatch safeguard. It does not retry; retry policy lives
// with batch reprocessing.
type Adapter struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewAdapter(gateway Gateway, logger *slog.Logger) *Adapter {
	return &Adapter{gateway: gateway, logger: logger}
}

// Classify compares the candidate against the prior capture (when one
// exists) and describes the candidate. Identical bytes never reach the
// gateway. A nil prior means this is the first capture at the location
// and only the description runs.
func (a *Adapter) Classify(ctx context.Context, candidate, prior []byte, priorObjects []Object) (Classification, error) {
	if prior != nil && bytes.Equal(candidate, prior) {
		return Classification{
			MajorChange:   false,
			Objects:       priorObjects,
			PrevObjects:   priorObjects,
			ByteIdentical: true,
		}, nil
	}

	resp, err := a.gateway.Classify(ctx, ClassifyRequest{
		Image:        candidate,
		PriorImage:   prior,
		PriorObjects: priorObjects,
	})
	if err != nil {
		return Classification{}, err
	}

	cls := Classification{
		MajorChange: resp.MajorChange,
		Reason:      normalizeReason(resp.Reason, resp.MajorChange),
		Caption:     resp.Caption,
		Objects:     resp.Objects,
		PrevObjects: priorObjects,
	}

	// A comparison only happened when a prior image was supplied.
	if prior != nil && !cls.MajorChange {
		if !resp.SceneMatch || resp.SceneSimilarity < sceneSimilarityFloor {
			cls.MajorChange = true
			if cls.Reason == "" {
				cls.Reason = "changed"
			}
			if a.logger != nil {
				a.logger.Debug("scene mismatch forced major change",
					"scene_match", resp.SceneMatch,
					"scene_similarity", resp.SceneSimilarity,
				)
			}
		}
	}

	return cls, nil
}

// normalizeReason restricts reasons to the known vocabulary:
// "damaged", "missing", "changed", or empty when nothing changed.
func normalizeReason(reason string, majorChange bool) string {
	switch reason {
	case "damaged", "missing", "changed":
		return reason
	}
	if majorChange {
		return "changed"
	}
	return ""
}
