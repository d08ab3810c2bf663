package imageprocessor

import (
	"context"
	"fmt"
)

// FormField is the multipart part name the detection service reads the image from.
const FormField = "file"

// UploadRequest is one submission to the detection service. It only lives for
// the duration of a single Process call.
type UploadRequest struct {
	RequestID string
	FileName  string
	Data      []byte
}

// Client exposes the subset of the detection service used by the upload flow.
// Process returns the annotated image bytes.
type Client interface {
	Process(ctx context.Context, req UploadRequest) ([]byte, error)
}

// StatusError reports a non-2xx answer from the detection service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("image processor returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("image processor returned status %d: %s", e.StatusCode, e.Body)
}
