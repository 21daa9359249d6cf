package ingest

import (
	"errors"

	"github.com/sitewatch/sitewatch/internal/twin"
)

// ErrLockTimeout means another upload for the same camera held the gate
// for longer than the configured acquire timeout. Safe to retry.
var ErrLockTimeout = errors.New("timed out waiting for camera lock")

// ErrMissingCoordinates means the request carried no coordinates and
// none could be recovered from the image itself.
var ErrMissingCoordinates = errors.New("no coordinates in request or image")

// IsRetryable reports whether the caller should retry the upload
// unchanged: gate contention and transient twin store failures qualify,
// validation failures do not.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrLockTimeout) {
		return true
	}
	var storeErr *twin.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.IsRetryable()
	}
	return false
}
