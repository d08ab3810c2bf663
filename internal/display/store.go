// Package display holds processed images behind revocable handles, the
// server-side counterpart of a browser object URL.
package display

import (
	"context"
	"errors"
)

// ErrNotFound is returned for unknown, revoked or expired handles.
var ErrNotFound = errors.New("display handle not found")

// ContentType is what every processed result is served as, whatever the
// detection service declared.
const ContentType = "image/jpeg"

// DownloadName is the suggested filename of the download affordance.
const DownloadName = "processed-image.jpg"

// Handle is an opaque reference usable as an image source and a download target.
type Handle string

// ImageURL is the path the handle is rendered from.
func (h Handle) ImageURL() string {
	if h == "" {
		return ""
	}
	return "/results/" + string(h)
}

// DownloadURL is the path that serves the handle as an attachment.
func (h Handle) DownloadURL() string {
	if h == "" {
		return ""
	}
	return "/results/" + string(h) + "/download"
}

// Object is the payload a handle resolves to.
type Object struct {
	Data        []byte
	ContentType string
}

// Store allocates, resolves and revokes handles.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Handle, error)
	Get(ctx context.Context, h Handle) (*Object, error)
	Revoke(ctx context.Context, h Handle) error
}
