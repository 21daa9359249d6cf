package twin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sitewatch/sitewatch/internal/vision"
)

// StoreError carries the HTTP status of a failed store call.
type StoreError struct {
	StatusCode int
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("twin store: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *StoreError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPStore talks to a Ditto-style things API: one thing per tracked
// location, with a "camera" feature (lastCapture, history) and a
// "detections" feature.
type HTTPStore struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPStore(baseURL, username, password string, timeout time.Duration, logger *slog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type thingWire struct {
	ThingID  string `json:"thingId"`
	Features struct {
		Camera struct {
			Properties struct {
				LastCapture Snapshot   `json:"lastCapture"`
				History     []Snapshot `json:"history"`
			} `json:"properties"`
		} `json:"camera"`
		Detections struct {
			Properties Detections `json:"properties"`
		} `json:"detections"`
	} `json:"features"`
}

func (s *HTTPStore) thingURL(thingID string) string {
	return s.baseURL + "/api/2/things/" + thingID
}

func (s *HTTPStore) Get(ctx context.Context, thingID string) (*Document, error) {
	status, body, _, err := s.do(ctx, http.MethodGet, s.thingURL(thingID), nil, "")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, &StoreError{StatusCode: status, Body: string(body)}
	}

	var wire thingWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode thing %s: %w", thingID, err)
	}

	return &Document{
		ThingID:     thingID,
		LastCapture: wire.Features.Camera.Properties.LastCapture,
		History:     wire.Features.Camera.Properties.History,
		Detections:  wire.Features.Detections.Properties,
	}, nil
}

// Create registers a new thing whose history starts with the first
// capture. The store treats this as a PUT, so a repeated create
// converges on the same state.
func (s *HTTPStore) Create(ctx context.Context, thingID string, last Snapshot, det Detections) error {
	var wire thingWire
	wire.ThingID = thingID
	wire.Features.Camera.Properties.LastCapture = last
	wire.Features.Camera.Properties.History = []Snapshot{last}
	wire.Features.Detections.Properties = det

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal thing %s: %w", thingID, err)
	}

	status, body, _, err := s.do(ctx, http.MethodPut, s.thingURL(thingID), payload, "application/json")
	if err != nil {
		return err
	}
	if status >= 400 {
		return &StoreError{StatusCode: status, Body: string(body)}
	}
	return nil
}

type mergePatch struct {
	Features map[string]map[string]any `json:"features"`
}

// Append applies one capture to an existing thing: the new snapshot is
// appended to history (trimmed oldest-first to historyMax), lastCapture
// and detections are replaced. Sent as a single JSON merge-patch so the
// store applies it atomically.
func (s *HTTPStore) Append(ctx context.Context, thingID string, last Snapshot, det Detections, historyMax int) error {
	doc, err := s.Get(ctx, thingID)
	if err != nil {
		return err
	}
	if doc == nil {
		return &StoreError{StatusCode: http.StatusNotFound, Body: "thing " + thingID + " does not exist"}
	}

	history := trimHistory(append(doc.History, last), historyMax)

	err = s.patch(ctx, thingID, last, history, det)
	if err == nil || !isTooLarge(err) {
		return err
	}

	// Payload too large: retry with progressively shorter history,
	// finally with just the newest snapshot.
	for _, keep := range []int{10, 5, 3, 1} {
		if keep > historyMax {
			continue
		}
		err = s.patch(ctx, thingID, last, trimHistory(history, keep), det)
		if err == nil || !isTooLarge(err) {
			return err
		}
	}
	return s.patch(ctx, thingID, last, []Snapshot{last}, det)
}

func isTooLarge(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.StatusCode == http.StatusRequestEntityTooLarge
}

func (s *HTTPStore) patch(ctx context.Context, thingID string, last Snapshot, history []Snapshot, det Detections) error {
	patch := mergePatch{Features: map[string]map[string]any{
		"camera": {"properties": map[string]any{
			"lastCapture": last,
			"history":     history,
		}},
		"detections": {"properties": det},
	}}

	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch for %s: %w", thingID, err)
	}

	status, body, _, err := s.do(ctx, http.MethodPatch, s.thingURL(thingID), payload, "application/merge-patch+json")
	if err != nil {
		return err
	}
	if status >= 400 {
		return &StoreError{StatusCode: status, Body: string(body)}
	}
	return nil
}

// UpdateDetections refreshes the caption and object list without
// touching the capture history, the change flags, or the prev block.
// Used when a capture is re-described after the fact.
func (s *HTTPStore) UpdateDetections(ctx context.Context, thingID, caption string, objects []vision.Object) error {
	patch := mergePatch{Features: map[string]map[string]any{
		"detections": {"properties": map[string]any{
			"caption": caption,
			"objects": objects,
		}},
	}}

	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal detections patch for %s: %w", thingID, err)
	}

	status, body, _, err := s.do(ctx, http.MethodPatch, s.thingURL(thingID), payload, "application/merge-patch+json")
	if err != nil {
		return err
	}
	if status >= 400 {
		return &StoreError{StatusCode: status, Body: string(body)}
	}
	return nil
}

var revisionPattern = regexp.MustCompile(`rev[:\-]?(\d+)`)

// Revisions walks the store's historical-revision feed for a thing,
// oldest first. The feed is read-only; the caller never mutates it.
func (s *HTTPStore) Revisions(ctx context.Context, thingID string) ([]json.RawMessage, error) {
	status, body, header, err := s.do(ctx, http.MethodGet, s.thingURL(thingID), nil, "")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, &StoreError{StatusCode: status, Body: string(body)}
	}

	current := parseRevisionETag(header.Get("ETag"))
	if current <= 1 {
		return []json.RawMessage{json.RawMessage(body)}, nil
	}

	revisions := make([]json.RawMessage, 0, current)
	for rev := int64(1); rev <= current; rev++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.thingURL(thingID), nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(s.username, s.password)
		req.Header.Set("at-historical-revision", strconv.FormatInt(rev, 10))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("revision %d request failed: %w", rev, err)
		}
		revBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()

		// Gaps in the revision feed are skipped, not fatal.
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			continue
		}
		revisions = append(revisions, json.RawMessage(revBody))
	}
	return revisions, nil
}

// SendAlert posts a fire-and-forget message to the thing's inbox.
func (s *HTTPStore) SendAlert(ctx context.Context, thingID, subject string, payload any) error {
	body := map[string]any{"path": "/application", "value": payload}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal alert for %s: %w", thingID, err)
	}

	url := s.thingURL(thingID) + "/inbox/messages/" + subject + "?timeout=0"
	status, respBody, _, err := s.do(ctx, http.MethodPost, url, data, "application/json")
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return &StoreError{StatusCode: status, Body: string(respBody)}
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, url string, payload []byte, contentType string) (int, []byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.username, s.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("twin store request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if s.logger != nil {
		s.logger.Debug("twin store call",
			"method", method,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func parseRevisionETag(etag string) int64 {
	if etag == "" {
		return 0
	}
	et := strings.ToLower(strings.Trim(strings.TrimSpace(etag), `"`))
	m := revisionPattern.FindStringSubmatch(et)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
