package upload

import "errors"

// Kind classifies why a selection or submission failed.
type Kind int

const (
	KindNoFileSelected Kind = iota + 1
	KindNetwork
	KindSampleLoad
)

// User-facing messages. Causes are logged, never shown.
const (
	MessageNoFileSelected = "Please select an image first!"
	MessageNetwork        = "Something went wrong. Please try again."
	MessageSampleLoad     = "Failed to load the sample image."
)

var (
	ErrNoFileSelected = errors.New("no file selected")
	ErrNetwork        = errors.New("submission failed")
	ErrSampleLoad     = errors.New("sample image could not be loaded")
	// ErrSuperseded is returned by a submission whose response arrived after
	// a newer user action; the response was dropped.
	ErrSuperseded = errors.New("submission superseded by a newer action")
)

func (k Kind) String() string {
	switch k {
	case KindNoFileSelected:
		return "NoFileSelected"
	case KindNetwork:
		return "NetworkError"
	case KindSampleLoad:
		return "SampleLoadError"
	default:
		return "Unknown"
	}
}

// Error is the controller's error state. Error() is the message rendered to
// the user; the diagnostic cause is reachable through errors.As/Unwrap.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func newError(kind Kind, cause error) *Error {
	e := &Error{Kind: kind, cause: cause}
	switch kind {
	case KindNoFileSelected:
		e.Message = MessageNoFileSelected
	case KindNetwork:
		e.Message = MessageNetwork
	case KindSampleLoad:
		e.Message = MessageSampleLoad
	}
	return e
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNoFileSelected:
		return e.Kind == KindNoFileSelected
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrSampleLoad:
		return e.Kind == KindSampleLoad
	}
	return false
}
