// Package ingest orchestrates one upload end to end: coordinate
// resolution, the per-camera gate, proximity matching, classification,
// the reconciliation decision, and the record+twin write. It is the
// only package that touches more than one of the storage surfaces.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitewatch/sitewatch/internal/alerts"
	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/geo"
	"github.com/sitewatch/sitewatch/internal/logging"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/reconcile"
	"github.com/sitewatch/sitewatch/internal/storage"
	"github.com/sitewatch/sitewatch/internal/twin"
	"github.com/sitewatch/sitewatch/internal/vision"
)

// MetadataExtractor recovers coordinates and capture time from the
// image itself when the request carries none.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, image []byte) (vision.Metadata, error)
}

// Options are the reconciliation knobs, all taken from config.
type Options struct {
	ProximityMeters float64
	HistoryMax      int
	Namespace       string
	LockTimeout     time.Duration
	SendAlerts      bool
}

type Service struct {
	db         *sql.DB
	repo       *capture.SQLiteRepository
	store      twin.Store
	classifier vision.Classifier
	extractor  MetadataExtractor
	files      *storage.Store
	hub        *alerts.Hub
	logger     *slog.Logger
	gate       *gate
	opts       Options
}

// NewService wires the pipeline. extractor and hub may be nil; without
// an extractor, uploads must carry coordinates, and without a hub no
// live notifications go out.
func NewService(db *sql.DB, repo *capture.SQLiteRepository, store twin.Store,
	classifier vision.Classifier, extractor MetadataExtractor,
	files *storage.Store, hub *alerts.Hub, logger *slog.Logger, opts Options) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		files:      files,
		hub:        hub,
		logger:     logger,
		gate:       newGate(),
		opts:       opts,
	}
}

// UploadRequest is one camera image plus whatever metadata came with it.
// Lat/Lon are optional; when absent the extractor reads them off the
// image.
type UploadRequest struct {
	CameraID   string
	Data       []byte
	Filename   string
	Lat        *float64
	Lon        *float64
	CapturedAt string
}

// Result describes what the pipeline did with one upload.
type Result struct {
	RecordID       int64    `json:"record_id"`
	ThingID        string   `json:"thing_id"`
	Outcome        string   `json:"outcome"`
	Changed        bool     `json:"changed"`
	Reason         string   `json:"reason,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	DistanceMeters *float64 `json:"distance_m,omitempty"`
	ImageURL       string   `json:"image_url"`
	Processed      bool     `json:"processed"`
}

// Ingest runs the full pipeline for one upload. On classifier outage it
// degrades: the upload is stored as unchanged and left unprocessed for
// the reprocessing pass instead of being rejected.
func (s *Service) Ingest(ctx context.Context, req UploadRequest) (*Result, error) {
	start := time.Now()

	if req.CameraID == "" {
		return nil, errors.New("camera id required")
	}
	if len(req.Data) == 0 {
		return nil, errors.New("empty image payload")
	}

	lat, lon, capturedAt, err := s.resolveMetadata(ctx, req)
	if err != nil {
		metrics.RecordUploadFailure("metadata")
		return nil, err
	}
	if err := geo.Validate(lat, lon); err != nil {
		metrics.RecordUploadFailure("invalid_coordinates")
		return nil, err
	}

	logger := logging.WithCamera(s.logger, req.CameraID)

	lockStart := time.Now()
	if err := s.gate.acquire(ctx, req.CameraID, s.opts.LockTimeout); err != nil {
		metrics.RecordUploadFailure("lock_timeout")
		return nil, err
	}
	metrics.ObserveLockWait(time.Since(lockStart).Seconds())
	defer s.gate.release(req.CameraID)

	records, err := s.repo.ListByCamera(ctx, req.CameraID)
	if err != nil {
		metrics.RecordUploadFailure("internal")
		return nil, fmt.Errorf("list records for %s: %w", req.CameraID, err)
	}

	match := reconcile.Nearest(records, lat, lon, s.opts.ProximityMeters)

	var prior []byte
	var priorObjects []vision.Object
	if match != nil {
		priorObjects = match.Record.Objects()
		prior, err = s.files.Read(match.Record.Path)
		if err != nil {
			// The record survives its image file; compare against nothing.
			logger.Warn("prior image unreadable, describing only",
				"record_id", match.Record.ID, "error", err)
			prior = nil
		}
	}

	cls, processed, err := s.classify(ctx, logger, req.Data, prior, priorObjects)
	if err != nil {
		metrics.RecordUploadFailure("classifier")
		return nil, err
	}
	if cls.ByteIdentical && match != nil {
		// No classification ran; the matched record's caption stands.
		cls.Caption = match.Record.Caption
	}

	decision := reconcile.Decide(match, cls)

	result, err := s.apply(ctx, req, lat, lon, capturedAt, decision, processed)
	if err != nil {
		if IsRetryable(err) {
			metrics.RecordUploadFailure("store")
		} else {
			metrics.RecordUploadFailure("internal")
		}
		return nil, err
	}

	metrics.RecordUpload(decision.Outcome.String())
	if count, err := s.repo.Count(ctx); err == nil {
		metrics.SetTrackedLocations(count)
	}
	metrics.ObserveIngestDuration(time.Since(start).Seconds())

	logger.Info("upload reconciled",
		"outcome", result.Outcome,
		"record_id", result.RecordID,
		"changed", result.Changed,
		"processed", result.Processed,
	)

	if decision.Outcome == reconcile.OutcomeOverwriteChanged {
		s.notify(ctx, req.CameraID, result, cls)
	}
	return result, nil
}

func (s *Service) resolveMetadata(ctx context.Context, req UploadRequest) (lat, lon float64, capturedAt string, err error) {
	capturedAt = req.CapturedAt

	if req.Lat != nil && req.Lon != nil {
		if capturedAt == "" {
			capturedAt = time.Now().UTC().Format(time.RFC3339)
		}
		return *req.Lat, *req.Lon, capturedAt, nil
	}

	if s.extractor == nil {
		return 0, 0, "", ErrMissingCoordinates
	}
	meta, err := s.extractor.ExtractMetadata(ctx, req.Data)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %w", ErrMissingCoordinates, err)
	}
	if capturedAt == "" {
		capturedAt = meta.CapturedAt
	}
	if capturedAt == "" {
		capturedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return meta.Lat, meta.Lon, capturedAt, nil
}

// classify calls the classifier and degrades on outage: the upload is
// treated as unchanged and flagged unprocessed. The bool is the
// processed flag for the stored record.
func (s *Service) classify(ctx context.Context, logger *slog.Logger, candidate, prior []byte, priorObjects []vision.Object) (vision.Classification, bool, error) {
	callStart := time.Now()
	cls, err := s.classifier.Classify(ctx, candidate, prior, priorObjects)
	if err == nil {
		if !cls.ByteIdentical {
			metrics.RecordClassifierCall(time.Since(callStart).Seconds())
		}
		return cls, true, nil
	}

	if errors.Is(err, vision.ErrUnavailable) {
		metrics.RecordClassifierFailure()
		logger.Warn("classifier unavailable, storing as unchanged unprocessed", "error", err)
		return vision.Classification{PrevObjects: priorObjects}, false, nil
	}
	return vision.Classification{}, false, err
}

func (s *Service) notify(ctx context.Context, cameraID string, result *Result, cls vision.Classification) {
	var distance float64
	if result.DistanceMeters != nil {
		distance = *result.DistanceMeters
	}
	alert := alerts.Alert{
		CameraID:       cameraID,
		RecordID:       result.RecordID,
		ThingID:        result.ThingID,
		Reason:         result.Reason,
		Caption:        result.Caption,
		ImageURL:       result.ImageURL,
		DistanceMeters: distance,
		Objects:        cls.Objects,
	}

	if s.hub != nil {
		s.hub.Publish(alert)
	}
	if s.opts.SendAlerts {
		if err := s.store.SendAlert(ctx, result.ThingID, "major-change", alert); err != nil {
			s.logger.Warn("twin alert delivery failed",
				"thing_id", result.ThingID, "error", err)
		}
	}
}

// Reprocess re-describes records whose last upload ran without the
// classifier. Comparison context is gone by now, so only the caption
// and object list are refreshed; the change flags and the prev block
// are left alone.
func (s *Service) Reprocess(ctx context.Context, limit int) (int, error) {
	records, err := s.repo.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed: %w", err)
	}

	var done []int64
	for _, rec := range records {
		data, err := s.files.Read(rec.Path)
		if err != nil {
			s.logger.Warn("skipping record without image", "record_id", rec.ID, "error", err)
			continue
		}

		cls, err := s.classifier.Classify(ctx, data, nil, nil)
		if err != nil {
			if errors.Is(err, vision.ErrUnavailable) {
				s.logger.Warn("classifier still unavailable, stopping reprocess", "record_id", rec.ID)
				break
			}
			return len(done), err
		}

		rec.Caption = cls.Caption
		rec.SetObjects(cls.Objects)
		if err := s.repo.Update(ctx, rec); err != nil {
			return len(done), fmt.Errorf("update record %d: %w", rec.ID, err)
		}

		thingID := twin.ThingID(s.opts.Namespace, rec.CameraID, rec.ID)
		if err := s.store.UpdateDetections(ctx, thingID, cls.Caption, nonNilObjects(cls.Objects)); err != nil {
			s.logger.Warn("twin detections refresh failed", "thing_id", thingID, "error", err)
			continue
		}

		done = append(done, rec.ID)
	}

	if err := s.repo.MarkProcessed(ctx, done); err != nil {
		return len(done), fmt.Errorf("mark processed: %w", err)
	}
	if len(done) > 0 {
		s.logger.Info("reprocessed records", "count", len(done))
	}
	return len(done), nil
}

func nonNilObjects(objects []vision.Object) []vision.Object {
	if objects == nil {
		return []vision.Object{}
	}
	return objects
}
