// Package vision adapts a remote VLM gateway into the narrow classifier
// contract the reconciliation pipeline depends on. The gateway compares
// and describes images; this package never looks at pixels itself.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUnavailable marks any failure to obtain a usable gateway response:
// unreachable host, timeout, non-2xx status, or malformed payload.
// Callers degrade to "unchanged, unprocessed" rather than failing the upload.
var ErrUnavailable = errors.New("vision gateway unavailable")

// GatewayError carries the HTTP status of a failed gateway call.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("vision gateway: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	return ErrUnavailable
}

// ClassifyRequest is the input to the gateway's classify operation.
// PriorImage and PriorObjects are optional; without them the gateway
// only describes the candidate image.
type ClassifyRequest struct {
	Image        []byte
	PriorImage   []byte
	PriorObjects []Object
}

// ClassifyResponse is the gateway's structured judgment.
type ClassifyResponse struct {
	MajorChange     bool
	Reason          string
	Caption         string
	Objects         []Object
	SceneMatch      bool
	SceneSimilarity float64
}

// Gateway is the remote classification capability.
type Gateway interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
	ExtractMetadata(ctx context.Context, image []byte) (Metadata, error)
}

// HTTPGateway talks to the vision gateway's JSON API.
type HTTPGateway struct {
	baseURL       string
	apiKey        string
	model         string
	maxImageBytes int
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewHTTPGateway(baseURL, apiKey, model string, timeout time.Duration, maxImageBytes int, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:       baseURL,
		apiKey:        apiKey,
		model:         model,
		maxImageBytes: maxImageBytes,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

type classifyWire struct {
	Model        string   `json:"model"`
	ImageB64     string   `json:"image_b64"`
	PriorB64     string   `json:"prior_image_b64,omitempty"`
	PriorObjects []Object `json:"prior_objects,omitempty"`
}

// classifyResult uses pointers for the required fields so a response
// that decodes but lacks them is still treated as malformed.
type classifyResult struct {
	MajorChange     *bool     `json:"major_change"`
	Reason          *string   `json:"reason"`
	Caption         *string   `json:"caption"`
	Objects         *[]Object `json:"objects"`
	SceneMatch      bool      `json:"scene_match"`
	SceneSimilarity float64   `json:"scene_similarity"`
}

func (g *HTTPGateway) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error) {
	if g.maxImageBytes > 0 && len(req.Image) > g.maxImageBytes {
		return ClassifyResponse{}, fmt.Errorf("image size %d exceeds gateway limit %d: %w",
			len(req.Image), g.maxImageBytes, ErrUnavailable)
	}

	wire := classifyWire{
		Model:        g.model,
		ImageB64:     base64.StdEncoding.EncodeToString(req.Image),
		PriorObjects: req.PriorObjects,
	}
	if len(req.PriorImage) > 0 {
		wire.PriorB64 = base64.StdEncoding.EncodeToString(req.PriorImage)
	}

	var result classifyResult
	if err := g.post(ctx, "/v1/classify", wire, &result); err != nil {
		return ClassifyResponse{}, err
	}

	if result.MajorChange == nil || result.Reason == nil || result.Caption == nil || result.Objects == nil {
		return ClassifyResponse{}, fmt.Errorf("classify response missing required fields: %w", ErrUnavailable)
	}

	return ClassifyResponse{
		MajorChange:     *result.MajorChange,
		Reason:          *result.Reason,
		Caption:         *result.Caption,
		Objects:         *result.Objects,
		SceneMatch:      result.SceneMatch,
		SceneSimilarity: result.SceneSimilarity,
	}, nil
}

type extractWire struct {
	Model    string `json:"model"`
	ImageB64 string `json:"image_b64"`
}

type extractResult struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	CapturedAt string   `json:"captured_at"`
}

// ExtractMetadata reads coordinates and capture time printed on the
// image itself. Unlike Classify, a failure here is surfaced directly:
// without coordinates there is nothing to reconcile.
func (g *HTTPGateway) ExtractMetadata(ctx context.Context, image []byte) (Metadata, error) {
	wire := extractWire{Model: g.model, ImageB64: base64.StdEncoding.EncodeToString(image)}

	var result extractResult
	if err := g.post(ctx, "/v1/extract", wire, &result); err != nil {
		return Metadata{}, err
	}
	if result.Lat == nil || result.Lon == nil {
		return Metadata{}, fmt.Errorf("extract response missing lat/lon: %w", ErrUnavailable)
	}

	return Metadata{Lat: *result.Lat, Lon: *result.Lon, CapturedAt: result.CapturedAt}, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if g.logger != nil {
		g.logger.Debug("vision gateway call",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("malformed gateway response: %w: %w", err, ErrUnavailable)
	}
	return nil
}
