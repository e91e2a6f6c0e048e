package domain

import (
	"context"
	"errors"
)

var (
	// ErrMalformedRequest signals missing or unparseable identifying fields.
	ErrMalformedRequest = errors.New("malformed capture request")
	// ErrLaunchFailure signals that the browser process could not be started.
	ErrLaunchFailure = errors.New("browser launch failed")
	// ErrNavigation signals that the project URL could not be loaded in time.
	ErrNavigation = errors.New("navigation failed")
	// ErrCaptureFailure signals a crash or encoding failure after navigation.
	ErrCaptureFailure = errors.New("screenshot capture failed")
	// ErrSlotTimeout signals that no capture slot became free in time.
	ErrSlotTimeout = errors.New("capture slot wait timed out")
	// ErrCoolingDown signals that the project URL failed recently and is not retried yet.
	ErrCoolingDown = errors.New("project url is cooling down")

	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// Reason maps a capture error to a short label used in logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrCoolingDown):
		return "cooling_down"
	case errors.Is(err, ErrSlotTimeout):
		return "slot_timeout"
	case errors.Is(err, ErrLaunchFailure):
		return "launch_failure"
	case errors.Is(err, ErrNavigation):
		if errors.Is(err, context.DeadlineExceeded) {
			return "navigation_timeout"
		}
		return "network_error"
	case errors.Is(err, ErrCaptureFailure):
		return "capture_failure"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
