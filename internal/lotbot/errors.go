package lotbot

import "fmt"

// GeocodingError reports that an address could not be resolved within the
// configured attempt budget.
type GeocodingError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocoding %q failed after %d attempt(s): %v", e.Address, e.Attempts, e.Err)
	}
	return fmt.Sprintf("geocoding %q failed after %d attempt(s)", e.Address, e.Attempts)
}

func (e *GeocodingError) Unwrap() error { return e.Err }

// ImageUnavailableError reports that no photograph exists for the requested
// coordinates. Distinct from StorageError so callers can tell "no photo"
// from "disk problem".
type ImageUnavailableError struct {
	Coordinates Coordinates
	Reason      string
}

func (e *ImageUnavailableError) Error() string {
	return fmt.Sprintf("no image available for %.4f,%.4f: %s", e.Coordinates.Latitude, e.Coordinates.Longitude, e.Reason)
}

// StorageError reports a local I/O failure while persisting an image.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure for %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AuthError reports a failed credential exchange with the social platform.
type AuthError struct {
	Handle string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Handle, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UploadError reports a failed media upload. Publishing recovers from it by
// degrading to a text-only post.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PostError reports a failed post creation call.
type PostError struct {
	Err error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post creation failed: %v", e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// PersistenceError reports a durable-store I/O failure or an invariant
// violation (unknown PIN, duplicate history entry).
type PersistenceError struct {
	Op  string
	PIN string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.PIN != "" {
		return fmt.Sprintf("store %s for PIN %s: %v", e.Op, e.PIN, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
