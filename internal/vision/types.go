package vision

// Object is one detected object in a capture.
type Object struct {
	Label      string     `json:"label"`
	State      string     `json:"state"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// Metadata holds coordinates and capture time read off the image itself.
type Metadata struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	CapturedAt string  `json:"captured_at"`
}

// Classification is the normalized decision payload consumed by the
// reconciliation engine.
type Classification struct {
	MajorChange bool
	Reason      string
	Caption     string
	Objects     []Object
	PrevObjects []Object

	// ByteIdentical marks an upload whose bytes matched the prior
	// capture exactly; the remote gateway was not consulted.
	ByteIdentical bool
}
