// Package twin models the digital-twin document kept for every tracked
// physical location and the document store contract used to mutate it.
// The store itself is remote; this package only speaks its API.
package twin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sitewatch/sitewatch/internal/vision"
)

// Snapshot is the denormalized description of one capture. History
// entries and lastCapture share this shape.
type Snapshot struct {
	ImageURL   string  `json:"image_url"`
	ImageHash  string  `json:"image_hash"`
	CapturedAt string  `json:"captured_at"`
	SizeBytes  int     `json:"size_bytes"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
}

// PrevDetections is the prior detection block kept for continuity.
type PrevDetections struct {
	Objects []vision.Object `json:"objects"`
}

// Detections is the twin's current detection state.
type Detections struct {
	Objects              []vision.Object `json:"objects"`
	Caption              string          `json:"caption"`
	ChangedSincePrevious bool            `json:"changed_since_previous"`
	ChangeReason         string          `json:"change_reason"`
	Prev                 PrevDetections  `json:"prev"`
}

// Document is one twin, 1:1 with a capture record.
type Document struct {
	ThingID     string
	LastCapture Snapshot
	History     []Snapshot
	Detections  Detections
}

// Store is the document store contract consumed by the twin state
// writer. Append must apply "append history + replace lastCapture +
// replace detections" as one store-side mutation. UpdateDetections
// touches only the caption and object list; the change flags and the
// prev block stay as the last full write left them.
type Store interface {
	Get(ctx context.Context, thingID string) (*Document, error)
	Create(ctx context.Context, thingID string, last Snapshot, det Detections) error
	Append(ctx context.Context, thingID string, last Snapshot, det Detections, historyMax int) error
	UpdateDetections(ctx context.Context, thingID, caption string, objects []vision.Object) error
	Revisions(ctx context.Context, thingID string) ([]json.RawMessage, error)
	SendAlert(ctx context.Context, thingID, subject string, payload any) error
}

// ThingID builds the store identifier for a capture record. The store
// expects a single ':' separating namespace from name, so camera and
// record id are joined with '-' in the name part.
func ThingID(namespace, cameraID string, recordID int64) string {
	return fmt.Sprintf("%s:%s-%d", namespace, cameraID, recordID)
}

// trimHistory keeps the newest max entries, dropping oldest first.
func trimHistory(history []Snapshot, max int) []Snapshot {
	if max > 0 && len(history) > max {
		return history[len(history)-max:]
	}
	return history
}
