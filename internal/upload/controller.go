package upload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/display"
	"github.com/example/age-gender-ui/internal/imageprocessor"
	"github.com/example/age-gender-ui/internal/logging"
)

// State is the lifecycle position of a controller.
type State int

const (
	StateIdle State = iota
	StateFileSelected
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFileSelected:
		return "FileSelected"
	case StateSubmitting:
		return "Submitting"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// File is a named binary payload: a user selection or an explicit payload
// such as a sample.
type File struct {
	Name string
	Data []byte
}

// Result is the processed image currently on display.
type Result struct {
	Handle      display.Handle
	Size        int
	ContentType string
	ReceivedAt  time.Time
}

// SampleFetcher retrieves the bytes of a bundled sample.
type SampleFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Snapshot is a point-in-time copy of the controller for rendering.
type Snapshot struct {
	State    State
	FileName string
	FileSize int
	Result   *Result
	Err      *Error
}

// Message returns the error text to display, or "".
func (s Snapshot) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// Controller owns one page session's selection, submissions, result and
// error. The result and error are never both set once a submission
// settles.
type Controller struct {
	processor imageprocessor.Client
	store     display.Store
	samples   SampleFetcher
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	selected *File
	result   *Result
	err      *Error
	// generation advances on every settling user action. A submission whose
	// generation is no longer current has its response dropped.
	generation uint64
	pending    uint64
}

// NewController constructs a controller in the Idle state.
func NewController(processor imageprocessor.Client, store display.Store, samples SampleFetcher, logger *zap.Logger) *Controller {
	return &Controller{
		processor: processor,
		store:     store,
		samples:   samples,
		logger:    logger.Named("upload_controller"),
		now:       time.Now,
	}
}

// SelectFile replaces the selection and clears both the error and the
// displayed result. A nil file clears the selection. No network call is made.
func (c *Controller) SelectFile(ctx context.Context, f *File) {
	c.mu.Lock()
	c.generation++
	if f != nil {
		c.selected = &File{Name: f.Name, Data: f.Data}
	} else {
		c.selected = nil
	}
	released := c.settleLocked(nil, nil)
	c.mu.Unlock()

	c.release(ctx, released)
}

// Submit sends explicit, or the stored selection when explicit is nil, to the
// detection service and settles into Succeeded or Failed. The returned error
// is nil on success, an *Error on failure, or ErrSuperseded when a newer
// action won while the request was in flight.
func (c *Controller) Submit(ctx context.Context, explicit *File) error {
	c.mu.Lock()
	payload := explicit
	if payload == nil {
		payload = c.selected
	}
	c.generation++
	gen := c.generation
	if payload == nil {
		failure := newError(KindNoFileSelected, nil)
		released := c.settleLocked(nil, failure)
		c.mu.Unlock()
		c.release(ctx, released)
		return failure
	}
	c.pending = gen
	c.mu.Unlock()

	return c.submit(ctx, gen, payload)
}

// ConsumeSample loads a bundled sample and submits it as the explicit payload.
// A failed load settles into SampleLoadError without touching the network.
// The click owns its generation from the start, so a newer action taken while
// the sample is still loading wins over it.
func (c *Controller) ConsumeSample(ctx context.Context, ref string) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.pending = gen
	c.mu.Unlock()

	data, err := c.samples.Fetch(ctx, ref)
	if err != nil {
		wrapped := logging.NewOperationError("upload.load_sample", "", err)
		c.logger.With(zap.String("sample", ref)).Error("failed to load sample image", logging.ErrorFields(wrapped)...)
		return c.finish(ctx, gen, nil, newError(KindSampleLoad, wrapped))
	}

	if c.stale(gen) {
		c.logger.Info("dropping superseded sample", zap.String("sample", ref), zap.Uint64("generation", gen))
		return ErrSuperseded
	}
	return c.submit(ctx, gen, &File{Data: data})
}

// submit runs one submission under gen, which the caller has already made
// pending.
func (c *Controller) submit(ctx context.Context, gen uint64, payload *File) error {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(c.logger, "upload.submit", requestID)

	data, err := c.processor.Process(ctx, imageprocessor.UploadRequest{
		RequestID: requestID,
		FileName:  payload.Name,
		Data:      payload.Data,
	})
	if err != nil {
		wrapped := logging.NewOperationError("upload.submit", requestID, err)
		opLogger.Error("submission failed", logging.ErrorFields(wrapped)...)
		return c.finish(ctx, gen, nil, newError(KindNetwork, wrapped))
	}

	if c.stale(gen) {
		opLogger.Info("dropping superseded response", zap.Uint64("generation", gen))
		return ErrSuperseded
	}

	handle, err := c.store.Put(ctx, data, display.ContentType)
	if err != nil {
		wrapped := logging.NewOperationError("upload.allocate_handle", requestID, err)
		opLogger.Error("failed to allocate display handle", logging.ErrorFields(wrapped)...)
		return c.finish(ctx, gen, nil, newError(KindNetwork, wrapped))
	}

	opLogger.Info("submission succeeded", zap.Int("result_bytes", len(data)))
	return c.finish(ctx, gen, &Result{
		Handle:      handle,
		Size:        len(data),
		ContentType: display.ContentType,
		ReceivedAt:  c.now().UTC(),
	}, nil)
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.stateLocked(), Err: c.err}
	if c.selected != nil {
		snap.FileName = c.selected.Name
		snap.FileSize = len(c.selected.Data)
	}
	if c.result != nil {
		result := *c.result
		snap.Result = &result
	}
	return snap
}

// Close returns the controller to Idle and releases its display handle.
// Responses still in flight are dropped when they land.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.selected = nil
	released := c.settleLocked(nil, nil)
	c.mu.Unlock()

	c.release(ctx, released)
}

func (c *Controller) finish(ctx context.Context, gen uint64, result *Result, failure *Error) error {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if result != nil {
			c.release(ctx, result.Handle)
		}
		c.logger.Info("dropping superseded response", zap.Uint64("generation", gen))
		return ErrSuperseded
	}
	c.pending = 0
	released := c.settleLocked(result, failure)
	c.mu.Unlock()

	c.release(ctx, released)
	if failure != nil {
		return failure
	}
	return nil
}

// settleLocked is the single place the displayed result is replaced. It
// returns the superseded handle, which the caller must release after
// unlocking.
func (c *Controller) settleLocked(result *Result, failure *Error) display.Handle {
	var previous display.Handle
	if c.result != nil {
		previous = c.result.Handle
	}
	c.result = result
	c.err = failure
	return previous
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

func (c *Controller) stateLocked() State {
	switch {
	case c.pending != 0 && c.pending == c.generation:
		return StateSubmitting
	case c.result != nil:
		return StateSucceeded
	case c.err != nil:
		return StateFailed
	case c.selected != nil:
		return StateFileSelected
	default:
		return StateIdle
	}
}

// release revokes h even when ctx is already cancelled, so a client
// disconnect cannot leak a handle.
func (c *Controller) release(ctx context.Context, h display.Handle) {
	if h == "" {
		return
	}
	if err := c.store.Revoke(context.WithoutCancel(ctx), h); err != nil {
		c.logger.With(zap.String("handle", string(h))).Warn("failed to revoke display handle", logging.ErrorFields(err)...)
	}
}
