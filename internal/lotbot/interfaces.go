package lotbot

import (
	"context"
	"time"
)

// PropertyStore persists property records and their post history.
type PropertyStore interface {
	// NextEligible returns up to limit unposted properties with fewer than
	// MaxErrors recorded failures, ordered by ascending PIN.
	NextEligible(ctx context.Context, limit int) ([]Property, error)

	// RecordSuccess marks the property posted and appends a history entry.
	// It fails if the PIN is unknown or a history entry already exists.
	RecordSuccess(ctx context.Context, pin, postID, imagePath string, postedAt time.Time) error

	// RecordError increments the property's error count and overwrites its
	// last error message.
	RecordError(ctx context.Context, pin, message string) error

	// SaveCoordinates caches resolved coordinates on the property record.
	SaveCoordinates(ctx context.Context, pin string, coords Coordinates) error

	// AddProperty inserts a property, replacing address and coordinates if
	// the PIN already exists. Processing state is never reset.
	AddProperty(ctx context.Context, p Property) error

	// Statistics returns the aggregate processing state.
	Statistics(ctx context.Context) (Statistics, error)

	// Close releases the store connection.
	Close()
}

// LocationResolver turns a free-text address into coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, address string) (Coordinates, error)
}

// ImageAcquirer fetches a photograph for coordinates and saves it locally,
// returning the path of the written file.
type ImageAcquirer interface {
	Acquire(ctx context.Context, pin string, coords Coordinates) (string, error)
}

// SocialPublisher creates posts on the social platform.
type SocialPublisher interface {
	// Publish creates a post with the given text, attaching the image at
	// imagePath when non-empty, and returns the platform-assigned post ID.
	Publish(ctx context.Context, text, imagePath string) (string, error)

	// FormatCaption renders the post text for a property.
	FormatCaption(pin, address string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
