package imagemeta

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"
)

func TestSHA256Hex_Stable(t *testing.T) {
	a := SHA256Hex([]byte("capture"))
	b := SHA256Hex([]byte("capture"))
	if a != b {
		t.Errorf("hash not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hex digest length = %d, want 64", len(a))
	}
	if SHA256Hex([]byte("other")) == a {
		t.Error("different inputs produced the same hash")
	}
}

func TestFromBytes_PNG(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	m := FromBytes(buf.Bytes())
	if !strings.HasPrefix(m.Hash, "sha256:") {
		t.Errorf("hash = %q, want sha256: prefix", m.Hash)
	}
	if m.Width != 32 || m.Height != 24 {
		t.Errorf("dimensions = %dx%d, want 32x24", m.Width, m.Height)
	}
	if m.SizeBytes != buf.Len() {
		t.Errorf("size = %d, want %d", m.SizeBytes, buf.Len())
	}
}

func TestFromBytes_UnknownFormat(t *testing.T) {
	m := FromBytes([]byte("not an image"))
	if m.Width != 0 || m.Height != 0 {
		t.Errorf("dimensions for non-image = %dx%d, want 0x0", m.Width, m.Height)
	}
	if m.Hash == "" || m.SizeBytes != 12 {
		t.Errorf("meta = %+v", m)
	}
}
