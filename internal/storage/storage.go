// Package storage holds tenant media behind a single Store interface. Every
// object key starts with the owning home's id, so one bucket safely serves
// all homes and removing a home is a prefix delete.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnavailable means the storage backend could not be reached or refused
// the operation. Handlers map it to 502; uploads are safe to retry.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the object storage contract. Implementations own their operation
// timeouts; callers pass the request context for cancellation.
type Store interface {
	// Upload writes an object and returns a URL a client can fetch it from.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Delete removes a single object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// EnsurePrefix prepares a home's storage area. Idempotent.
	EnsurePrefix(ctx context.Context, homeID int64) error

	// RemovePrefix deletes every object under a home's prefix. Idempotent.
	RemovePrefix(ctx context.Context, homeID int64) error

	// PrefixEmpty reports whether anything remains under a home's prefix.
	// Teardown verification refuses to finish while objects linger.
	PrefixEmpty(ctx context.Context, homeID int64) (bool, error)
}

// HomePrefix returns the key prefix all of a home's objects live under.
func HomePrefix(homeID int64) string {
	return fmt.Sprintf("%d/", homeID)
}

// EventImageKey builds the object key for an event's image.
func EventImageKey(homeID, eventID int64, ext string) string {
	return fmt.Sprintf("%d/events/images/%d%s", homeID, eventID, normalizeExt(ext))
}

// UserPhotoKey builds the object key for a user's photo.
func UserPhotoKey(homeID, userID int64, ext string) string {
	return fmt.Sprintf("%d/users/photos/%d%s", homeID, userID, normalizeExt(ext))
}

// InstructorPhotoKey builds the object key for an event instructor's photo.
func InstructorPhotoKey(homeID, instructorID int64, ext string) string {
	return fmt.Sprintf("%d/instructors/photos/instructor_%d%s", homeID, instructorID, normalizeExt(ext))
}

// RequestMediaKey builds the object key for a service request chat attachment.
func RequestMediaKey(homeID, requestID, messageID int64, ext string) string {
	return fmt.Sprintf("%d/requests/%d/%d%s", homeID, requestID, messageID, normalizeExt(ext))
}

// ExtFromFilename extracts a lowercase extension (with dot) from an uploaded
// filename, falling back to the content type's conventional extension.
func ExtFromFilename(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && ext != "." {
		return ext
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
