package api

import (
	"encoding/json"

	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/twin"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ImageResponse struct {
	ID         int64   `json:"id"`
	CameraID   string  `json:"camera_id"`
	ImageURL   string  `json:"image_url"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	CapturedAt string  `json:"captured_at"`
	Processed  bool    `json:"processed"`
	Changed    bool    `json:"changed"`
	Reason     string  `json:"reason,omitempty"`
	Caption    string  `json:"caption,omitempty"`
	ThingID    string  `json:"thing_id"`
	UpdatedAt  string  `json:"updated_at"`
}

type ImagesResponse struct {
	Images []ImageResponse `json:"images"`
}

type TwinResponse struct {
	ThingID     string          `json:"thing_id"`
	LastCapture twin.Snapshot   `json:"last_capture"`
	History     []twin.Snapshot `json:"history"`
	Detections  twin.Detections `json:"detections"`
}

type CapturesResponse struct {
	ThingID     string          `json:"thing_id"`
	Captures    []twin.Snapshot `json:"captures"`
	Total       int             `json:"total"`
	LastCapture *twin.Snapshot  `json:"last_capture,omitempty"`
}

type RevisionsResponse struct {
	ThingID   string            `json:"thing_id"`
	Revisions []json.RawMessage `json:"revisions"`
}

func ImageToResponse(rec *capture.Record, namespace string) ImageResponse {
	return ImageResponse{
		ID:         rec.ID,
		CameraID:   rec.CameraID,
		ImageURL:   publicURL(rec.Path),
		Lat:        rec.Lat,
		Lon:        rec.Lon,
		CapturedAt: rec.CapturedAt,
		Processed:  rec.Processed,
		Changed:    rec.Changed,
		Reason:     rec.Reason,
		Caption:    rec.Caption,
		ThingID:    twin.ThingID(namespace, rec.CameraID, rec.ID),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(timeFormat),
	}
}
