package capture

import (
	"encoding/json"
	"time"

	"github.com/sitewatch/sitewatch/internal/vision"
)

// Record is one tracked physical location for a camera. It is created
// once when no prior capture is within the proximity radius and
// overwritten in place on every later matching upload; it is never
// duplicated for the same location and never deleted.
type Record struct {
	ID         int64   `json:"id"`
	CameraID   string  `json:"camera_id"`
	Path       string  `json:"path"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	CapturedAt string  `json:"captured_at"`

	// Processed is false when the classifier could not run for the
	// latest upload; such records are picked up by batch reprocessing.
	Processed bool   `json:"processed"`
	Changed   bool   `json:"changed"`
	Reason    string `json:"reason"`
	Caption   string `json:"caption"`

	DetectionsJSON string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type detectionsDoc struct {
	Objects []vision.Object `json:"objects"`
}

// Objects parses the stored detections payload. Malformed or empty
// payloads yield nil rather than an error; detections are advisory.
func (r *Record) Objects() []vision.Object {
	if r.DetectionsJSON == "" {
		return nil
	}
	var doc detectionsDoc
	if err := json.Unmarshal([]byte(r.DetectionsJSON), &doc); err != nil {
		return nil
	}
	return doc.Objects
}

// SetObjects replaces the stored detections payload.
func (r *Record) SetObjects(objects []vision.Object) {
	if objects == nil {
		objects = []vision.Object{}
	}
	data, err := json.Marshal(detectionsDoc{Objects: objects})
	if err != nil {
		return
	}
	r.DetectionsJSON = string(data)
}
