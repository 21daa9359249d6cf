package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/imagemeta"
	"github.com/sitewatch/sitewatch/internal/reconcile"
	"github.com/sitewatch/sitewatch/internal/storage"
	"github.com/sitewatch/sitewatch/internal/twin"
)

// apply commits a decision: the image file, the capture record, and the
// twin document. The record write runs in a transaction held open
// across the twin mutation, so a store failure rolls the record back
// and the upload fails as one unit.
func (s *Service) apply(ctx context.Context, req UploadRequest, lat, lon float64,
	capturedAt string, decision reconcile.Decision, processed bool) (*Result, error) {

	meta := imagemeta.FromBytes(req.Data)
	_, path, err := s.files.Save(req.Data, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.discard(path)
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	txRepo := s.repo.WithTx(tx)

	cls := decision.Classification

	var rec *capture.Record
	var oldPath string
	if decision.Overwrites() {
		rec, err = txRepo.GetByID(ctx, decision.TargetID)
		if err == nil && rec == nil {
			err = fmt.Errorf("matched record %d vanished", decision.TargetID)
		}
		if err != nil {
			tx.Rollback()
			s.discard(path)
			return nil, err
		}
		oldPath = rec.Path

		rec.Path = path
		rec.Lat = lat
		rec.Lon = lon
		rec.CapturedAt = capturedAt
		rec.Processed = processed
		rec.Changed = cls.MajorChange
		rec.Reason = cls.Reason
		rec.Caption = cls.Caption
		rec.SetObjects(cls.Objects)
		err = txRepo.Update(ctx, rec)
	} else {
		rec = &capture.Record{
			CameraID:   req.CameraID,
			Path:       path,
			Lat:        lat,
			Lon:        lon,
			CapturedAt: capturedAt,
			Processed:  processed,
			Changed:    cls.MajorChange,
			Reason:     cls.Reason,
			Caption:    cls.Caption,
		}
		rec.SetObjects(cls.Objects)
		err = txRepo.Insert(ctx, rec)
	}
	if err != nil {
		tx.Rollback()
		s.discard(path)
		return nil, fmt.Errorf("write record: %w", err)
	}

	thingID := twin.ThingID(s.opts.Namespace, rec.CameraID, rec.ID)
	snapshot := twin.Snapshot{
		ImageURL:   storage.PublicURL(path),
		ImageHash:  meta.Hash,
		CapturedAt: capturedAt,
		SizeBytes:  meta.SizeBytes,
		Lat:        lat,
		Lon:        lon,
		Width:      meta.Width,
		Height:     meta.Height,
	}
	det := twin.Detections{
		Objects:              nonNilObjects(cls.Objects),
		Caption:              cls.Caption,
		ChangedSincePrevious: cls.MajorChange,
		ChangeReason:         cls.Reason,
		Prev:                 twin.PrevDetections{Objects: nonNilObjects(cls.PrevObjects)},
	}

	if err := s.writeTwin(ctx, thingID, snapshot, det); err != nil {
		tx.Rollback()
		s.discard(path)
		return nil, fmt.Errorf("twin write for %s: %w", thingID, err)
	}

	// A commit failure here leaves the twin holding a capture the record
	// store never saw. The window is not compensated: the next upload at
	// this location replaces lastCapture and detections, and history is
	// trimmed to the cap as usual.
	if err := tx.Commit(); err != nil {
		s.discard(path)
		return nil, fmt.Errorf("commit: %w", err)
	}

	if decision.Overwrites() && oldPath != "" && oldPath != path {
		s.discard(oldPath)
	}

	result := &Result{
		RecordID:  rec.ID,
		ThingID:   thingID,
		Outcome:   decision.Outcome.String(),
		Changed:   cls.MajorChange,
		Reason:    cls.Reason,
		Caption:   cls.Caption,
		ImageURL:  snapshot.ImageURL,
		Processed: processed,
	}
	if decision.Overwrites() {
		d := decision.DistanceMeters
		result.DistanceMeters = &d
	}
	return result, nil
}

// writeTwin creates the document on first capture and appends on every
// later one. A missing document on an overwrite is healed by recreating
// it rather than failing the upload.
func (s *Service) writeTwin(ctx context.Context, thingID string, snapshot twin.Snapshot, det twin.Detections) error {
	doc, err := s.store.Get(ctx, thingID)
	if err != nil {
		return err
	}
	if doc == nil {
		return s.store.Create(ctx, thingID, snapshot, det)
	}
	return s.store.Append(ctx, thingID, snapshot, det, s.opts.HistoryMax)
}

// discard removes a stored image file, best effort.
func (s *Service) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove image file", "path", path, "error", err)
	}
}
