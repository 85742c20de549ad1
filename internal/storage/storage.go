// Package storage persists uploaded avatar images and returns the URL the
// public profile should reference.
package storage

import (
	"context"
	"encoding/base64"
	"net/http"
)

// AvatarStore saves an image for a user and returns its public URL.
type AvatarStore interface {
	PutAvatar(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SniffImage detects the content type from the leading bytes and reports
// whether it is an accepted avatar format. The client's declared type is
// never trusted.
func SniffImage(data []byte) (string, bool) {
	ct := http.DetectContentType(data)
	_, ok := imageExtensions[ct]
	return ct, ok
}

// DataURLStore inlines the image into a data: URL. It needs no external
// service and is the fallback when no bucket is configured.
type DataURLStore struct{}

var _ AvatarStore = DataURLStore{}

func (DataURLStore) PutAvatar(_ context.Context, _ string, contentType string, data []byte) (string, error) {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
