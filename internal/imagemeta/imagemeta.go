// Package imagemeta derives snapshot metadata from raw image bytes:
// a stable content hash and, when the format is recognized, pixel
// dimensions. It never decodes full pixel data.
package imagemeta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Meta describes one image payload.
type Meta struct {
	// Hash is "sha256:<hex>" over the raw bytes.
	Hash string

	// Width and Height are zero when the format is not recognized.
	Width  int
	Height int

	SizeBytes int
}

// SHA256Hex returns the lowercase hex digest of the given bytes.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromBytes computes metadata for an image payload. Unrecognized
// formats still get a hash and size; dimensions stay zero.
func FromBytes(data []byte) Meta {
	m := Meta{
		Hash:      "sha256:" + SHA256Hex(data),
		SizeBytes: len(data),
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		m.Width = cfg.Width
		m.Height = cfg.Height
	}
	return m
}
