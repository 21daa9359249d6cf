package vision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPGateway_Classify_Success(t *testing.T) {
	var receivedAuth string
	var receivedBody classifyWire

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		receivedAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &receivedBody)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"major_change": true,
			"reason": "missing",
			"caption": "empty pedestal",
			"objects": [{"label":"pedestal","state":"intact","confidence":0.8,"bbox":[0.1,0.1,0.2,0.2]}],
			"scene_match": true,
			"scene_similarity": 0.9
		}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "test-key", "vlm-1", 5*time.Second, 0, testLogger())

	resp, err := gw.Classify(context.Background(), ClassifyRequest{
		Image:      []byte("new image"),
		PriorImage: []byte("old image"),
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if receivedAuth != "Bearer test-key" {
		t.Errorf("auth = %q, want bearer key", receivedAuth)
	}
	if receivedBody.Model != "vlm-1" {
		t.Errorf("model = %q, want vlm-1", receivedBody.Model)
	}
	if receivedBody.PriorB64 == "" {
		t.Error("prior image not sent")
	}
	if !resp.MajorChange || resp.Reason != "missing" || resp.Caption != "empty pedestal" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Objects) != 1 || resp.Objects[0].Label != "pedestal" {
		t.Errorf("objects = %+v", resp.Objects)
	}
}

func TestHTTPGateway_Classify_MissingFieldsIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"caption": "only a caption"}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "", "vlm-1", 5*time.Second, 0, testLogger())

	_, err := gw.Classify(context.Background(), ClassifyRequest{Image: []byte("x")})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestHTTPGateway_Classify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "", "vlm-1", 5*time.Second, 0, testLogger())

	_, err := gw.Classify(context.Background(), ClassifyRequest{Image: []byte("x")})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("error = %v, want GatewayError with status 500", err)
	}
}

func TestHTTPGateway_Classify_OversizedImage(t *testing.T) {
	gw := NewHTTPGateway("http://unused", "", "vlm-1", time.Second, 4, testLogger())

	_, err := gw.Classify(context.Background(), ClassifyRequest{Image: []byte("too large")})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestHTTPGateway_ExtractMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/extract" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"lat": 52.52, "lon": 13.405, "captured_at": "2026-08-01T10:00:00Z"}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "", "vlm-1", 5*time.Second, 0, testLogger())

	meta, err := gw.ExtractMetadata(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("ExtractMetadata() error = %v", err)
	}
	if meta.Lat != 52.52 || meta.Lon != 13.405 || meta.CapturedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestHTTPGateway_ExtractMetadata_MissingCoords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"captured_at": "2026-08-01T10:00:00Z"}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "", "vlm-1", 5*time.Second, 0, testLogger())

	_, err := gw.ExtractMetadata(context.Background(), []byte("image"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}
