package capture

import "errors"

var (
	ErrInvalidTransition = errors.New("action not allowed in current phase")
	ErrInvalidMode       = errors.New("unknown scan mode")
	ErrSessionClosed     = errors.New("scan session closed")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCameraNotFailed   = errors.New("camera is not in a failed state")
	ErrMissingSharedBack = errors.New("shared card back not captured")
	ErrMissingFront      = errors.New("no pending card front")
	ErrEmptyCapture      = errors.New("capture region is empty")
)
