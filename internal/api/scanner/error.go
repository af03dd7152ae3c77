package scanner

import (
	"net/http"

	"cardscan/pkg/response"
)

var (
	ErrInvalidMessage    = response.NewError(http.StatusBadRequest, "invalid scanner message")
	ErrInvalidFrame      = response.NewError(http.StatusBadRequest, "frame could not be decoded")
	ErrInvalidTransition = response.NewError(http.StatusConflict, "action not allowed in current phase")
	ErrSessionClosed     = response.NewError(http.StatusGone, "scan session closed")
	ErrCameraUnavailable = response.NewError(http.StatusServiceUnavailable, "camera unavailable")
	ErrCameraTimeout     = response.NewError(http.StatusGatewayTimeout, "camera did not start in time")
	ErrUploadFailed      = response.NewError(http.StatusBadGateway, "card upload failed")
	ErrCardAPIRejected   = response.NewError(http.StatusBadGateway, "card service rejected the upload")
	ErrTooManyFrames     = response.NewError(http.StatusTooManyRequests, "frame rate limit exceeded")
)
