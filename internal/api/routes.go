package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/geo"
	"github.com/sitewatch/sitewatch/internal/ingest"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/storage"
	"github.com/sitewatch/sitewatch/internal/twin"
)

// maxUploadBytes bounds the multipart body; images larger than the
// vision gateway accepts are pointless to store anyway.
const maxUploadBytes = 32 << 20

func publicURL(path string) string {
	return storage.PublicURL(path)
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", metrics.Handler())
	r.Handle(storage.StaticMount+"/*", http.StripPrefix(storage.StaticMount+"/",
		http.FileServer(http.Dir(cfg.UploadsDir))))

	r.Post("/upload", uploadHandler(cfg))
	r.Get("/images", listImagesHandler(cfg))
	r.Get("/twin/{cameraID}/{recordID}", getTwinHandler(cfg))
	r.Get("/twin/{cameraID}/{recordID}/captures", listCapturesHandler(cfg))
	r.Get("/twin/{cameraID}/{recordID}/revisions", listRevisionsHandler(cfg))
	r.Get("/ws/alerts", alertsHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid multipart body", "BAD_REQUEST")
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "image file is required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "could not read image", "BAD_REQUEST")
			return
		}

		req := ingest.UploadRequest{
			CameraID:   r.FormValue("camera_id"),
			Data:       data,
			Filename:   header.Filename,
			CapturedAt: r.FormValue("captured_at"),
		}
		if req.CameraID == "" {
			WriteError(w, http.StatusBadRequest, "camera_id is required", "BAD_REQUEST")
			return
		}

		// lat/lon are optional as a pair; one without the other is a
		// client bug.
		latStr, lonStr := r.FormValue("lat"), r.FormValue("lon")
		if (latStr == "") != (lonStr == "") {
			WriteError(w, http.StatusBadRequest, "lat and lon must be provided together", "BAD_REQUEST")
			return
		}
		if latStr != "" {
			lat, err := strconv.ParseFloat(latStr, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "lat is not a number", "BAD_REQUEST")
				return
			}
			lon, err := strconv.ParseFloat(lonStr, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "lon is not a number", "BAD_REQUEST")
				return
			}
			req.Lat, req.Lon = &lat, &lon
		}

		result, err := cfg.Service.Ingest(r.Context(), req)
		if err != nil {
			writeIngestError(w, err)
			return
		}

		status := http.StatusOK
		if result.Outcome == "create" {
			status = http.StatusCreated
		}
		WriteJSON(w, status, result)
	}
}

func writeIngestError(w http.ResponseWriter, err error) {
	var coordErr *geo.ErrInvalidCoordinate
	switch {
	case errors.As(err, &coordErr):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_COORDINATES")
	case errors.Is(err, ingest.ErrMissingCoordinates):
		WriteError(w, http.StatusBadRequest, err.Error(), "MISSING_COORDINATES")
	case errors.Is(err, ingest.ErrLockTimeout):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "CAMERA_BUSY")
	case ingest.IsRetryable(err):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "STORE_UNAVAILABLE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func listImagesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var records []*capture.Record
		var err error
		if cameraID := r.URL.Query().Get("camera_id"); cameraID != "" {
			records, err = cfg.Repository.ListByCamera(r.Context(), cameraID)
		} else {
			records, err = cfg.Repository.List(r.Context(), limit)
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list images", "INTERNAL_ERROR")
			return
		}

		resp := ImagesResponse{Images: make([]ImageResponse, len(records))}
		for i, rec := range records {
			resp.Images[i] = ImageToResponse(rec, cfg.Namespace)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func thingIDFromRequest(cfg ServerConfig, r *http.Request) (string, bool) {
	cameraID := chi.URLParam(r, "cameraID")
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if cameraID == "" || err != nil {
		return "", false
	}
	return twin.ThingID(cfg.Namespace, cameraID, recordID), true
}

func getTwinHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		thingID, ok := thingIDFromRequest(cfg, r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid camera or record id", "BAD_REQUEST")
			return
		}

		doc, err := cfg.Store.Get(r.Context(), thingID)
		if err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "STORE_ERROR")
			return
		}
		if doc == nil {
			WriteError(w, http.StatusNotFound, "twin not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, TwinResponse{
			ThingID:     doc.ThingID,
			LastCapture: doc.LastCapture,
			History:     doc.History,
			Detections:  doc.Detections,
		})
	}
}

func listCapturesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		thingID, ok := thingIDFromRequest(cfg, r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid camera or record id", "BAD_REQUEST")
			return
		}

		doc, err := cfg.Store.Get(r.Context(), thingID)
		if err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "STORE_ERROR")
			return
		}
		if doc == nil {
			WriteError(w, http.StatusNotFound, "twin not found", "NOT_FOUND")
			return
		}

		q := r.URL.Query()
		captures := make([]twin.Snapshot, len(doc.History))
		copy(captures, doc.History)

		// Newest first unless asked for chronological order.
		if q.Get("order") != "asc" {
			for i, j := 0, len(captures)-1; i < j; i, j = i+1, j-1 {
				captures[i], captures[j] = captures[j], captures[i]
			}
		}

		total := len(captures)
		offset, _ := strconv.Atoi(q.Get("offset"))
		if offset > len(captures) {
			offset = len(captures)
		}
		if offset > 0 {
			captures = captures[offset:]
		}
		if limit, _ := strconv.Atoi(q.Get("limit")); limit > 0 && limit < len(captures) {
			captures = captures[:limit]
		}

		resp := CapturesResponse{ThingID: thingID, Captures: captures, Total: total}
		if q.Get("include_last") == "true" {
			last := doc.LastCapture
			resp.LastCapture = &last
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRevisionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		thingID, ok := thingIDFromRequest(cfg, r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid camera or record id", "BAD_REQUEST")
			return
		}

		revisions, err := cfg.Store.Revisions(r.Context(), thingID)
		if err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "STORE_ERROR")
			return
		}
		if revisions == nil {
			WriteError(w, http.StatusNotFound, "twin not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RevisionsResponse{ThingID: thingID, Revisions: revisions})
	}
}

var upgrader = websocket.Upgrader{
	// Alerts are broadcast-only; any origin may listen.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func alertsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Hub == nil {
			WriteError(w, http.StatusNotImplemented, "alerts disabled", "ALERTS_DISABLED")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		cfg.Hub.Register(conn)

		// Drain the connection so client close frames are seen.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cfg.Hub.Unregister(conn)
					return
				}
			}
		}()
	}
}
