package inferenceclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/imageprocessor"
	"github.com/example/age-gender-ui/internal/logging"
)

// UploadPath is the detection service route that accepts images.
const UploadPath = "/upload"

// ErrEmptyResult is returned when the service answers 2xx without an image.
var ErrEmptyResult = errors.New("image processor returned an empty body")

// ErrResultTooLarge is returned when the answer exceeds the configured limit.
var ErrResultTooLarge = errors.New("image processor result exceeds size limit")

// Options tunes the HTTP client. Zero values pick the defaults.
type Options struct {
	Timeout        time.Duration
	MaxResultBytes int64
	HTTPClient     *http.Client
}

// New returns an imageprocessor.Client that talks multipart HTTP to baseURL.
func New(baseURL string, opts Options, logger *zap.Logger) imageprocessor.Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxResult := opts.MaxResultBytes
	if maxResult <= 0 {
		maxResult = 20 << 20
	}
	return &httpImageProcessor{
		endpoint:   strings.TrimRight(baseURL, "/") + UploadPath,
		httpClient: httpClient,
		maxResult:  maxResult,
		logger:     logger.Named("inference_client"),
	}
}

type httpImageProcessor struct {
	endpoint   string
	httpClient *http.Client
	maxResult  int64
	logger     *zap.Logger
}

func (h *httpImageProcessor) Process(ctx context.Context, upload imageprocessor.UploadRequest) ([]byte, error) {
	opLogger := logging.WithOperation(h.logger, "inference.post_upload", upload.RequestID)

	body, contentType, err := encodeMultipart(upload)
	if err != nil {
		return nil, logging.NewOperationError("inference.encode_multipart", upload.RequestID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return nil, logging.NewOperationError("inference.build_request", upload.RequestID, err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("inference.post_upload", upload.RequestID, err)
		opLogger.With(zap.String("endpoint", h.endpoint)).Error("image processor call failed", logging.ErrorFields(wrapped)...)
		return nil, wrapped
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxResult+1))
	if err != nil {
		return nil, logging.NewOperationError("inference.read_response", upload.RequestID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &imageprocessor.StatusError{StatusCode: resp.StatusCode, Body: snippet(data)}
		opLogger.Warn("image processor rejected upload", zap.Int("status", resp.StatusCode))
		return nil, logging.NewOperationError("inference.post_upload", upload.RequestID, statusErr)
	}
	if int64(len(data)) > h.maxResult {
		return nil, logging.NewOperationError("inference.read_response", upload.RequestID, ErrResultTooLarge)
	}
	if len(data) == 0 {
		return nil, logging.NewOperationError("inference.read_response", upload.RequestID, ErrEmptyResult)
	}

	opLogger.Debug("image processed",
		zap.Int("request_bytes", len(upload.Data)),
		zap.Int("result_bytes", len(data)),
		zap.Duration("latency", time.Since(start)),
	)
	return data, nil
}

func encodeMultipart(upload imageprocessor.UploadRequest) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fileName := upload.FileName
	if fileName == "" {
		fileName = "blob"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		imageprocessor.FormField, escapeQuotes(fileName)))
	header.Set("Content-Type", http.DetectContentType(upload.Data))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// snippet keeps error bodies short enough for a log line.
func snippet(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max])
	}
	return string(data)
}
