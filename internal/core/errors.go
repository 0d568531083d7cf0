package core

import (
	"errors"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

type ErrorKind string

// Offline and upload failures are not flow errors; they come back as an
// Outcome carrying the classifier result.
const (
	KindAcquisition ErrorKind = "acquisition"
	KindPermission  ErrorKind = "permission"
	KindDecode      ErrorKind = "decode"
)

// Messages shown to the user.
const (
	MessageNoCamera          = "No camera app found"
	MessageNoLibrary         = "No gallery app found"
	MessagePermissionNeeded  = "Permissions are required to continue"
	MessageNoImageCaptured   = "No image captured"
	MessageImageMissing      = "Image file does not exist"
	MessageUnsupportedImage  = "Unsupported image type"
	MessageNoImageToProceed  = "No image to proceed"
	MessageImageNotFound     = "Image file not found"
	MessageImageAccess       = "Error accessing image. Please check app permissions."
	MessageCaptureFailed     = "Error creating image file"
	MessageLibraryUnreadable = "Error opening gallery"
)

// FlowError is an error that ends the current step with a message for the
// user.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

func newFlowError(kind ErrorKind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Cause: cause}
}

func IsKind(err error, kind ErrorKind) bool {
	var flowErr *FlowError
	return errors.As(err, &flowErr) && flowErr.Kind == kind
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Message
	}
	return err.Error()
}

// acquisitionError translates selector errors into the user facing taxonomy.
func acquisitionError(err error, fallback string) *FlowError {
	switch {
	case errors.Is(err, imagesource.ErrPermissionDenied):
		return newFlowError(KindPermission, MessagePermissionNeeded, err)
	case errors.Is(err, imagesource.ErrNoCamera):
		return newFlowError(KindAcquisition, MessageNoCamera, err)
	case errors.Is(err, imagesource.ErrNoLibrary):
		return newFlowError(KindAcquisition, MessageNoLibrary, err)
	case errors.Is(err, imagesource.ErrCancelled):
		return newFlowError(KindAcquisition, MessageNoImageCaptured, err)
	case errors.Is(err, imagesource.ErrNotFound):
		return newFlowError(KindAcquisition, MessageImageMissing, err)
	case errors.Is(err, imagesource.ErrUnsupportedImage):
		return newFlowError(KindAcquisition, MessageUnsupportedImage, err)
	default:
		return newFlowError(KindAcquisition, fallback, err)
	}
}

func decodeError(err error) *FlowError {
	return newFlowError(KindDecode, MessageImageAccess, err)
}
