package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrors_AreDistinctAndWrappable(t *testing.T) {
	all := []error{
		ErrMalformedRequest, ErrLaunchFailure, ErrNavigation, ErrCaptureFailure,
		ErrSlotTimeout, ErrCoolingDown, ErrInvalidAPIKey, ErrTokenStoreNotReady,
	}
	for i, a := range all {
		if a == nil || a.Error() == "" {
			t.Fatalf("error %d must be non-nil with a message", i)
		}
		for j, b := range all {
			if i != j && a == b {
				t.Fatalf("errors %d and %d must be distinct", i, j)
			}
		}
		wrapped := errors.Join(errors.New("context"), a)
		if !errors.Is(wrapped, a) {
			t.Fatalf("expected errors.Is to match %v", a)
		}
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: x", ErrMalformedRequest), "malformed_request"},
		{ErrCoolingDown, "cooling_down"},
		{ErrSlotTimeout, "slot_timeout"},
		{fmt.Errorf("%w: %w", ErrLaunchFailure, errors.New("exec: not found")), "launch_failure"},
		{fmt.Errorf("%w: %w", ErrNavigation, context.DeadlineExceeded), "navigation_timeout"},
		{fmt.Errorf("%w: %w", ErrNavigation, errors.New("net::ERR_NAME_NOT_RESOLVED")), "network_error"},
		{fmt.Errorf("%w: boom", ErrCaptureFailure), "capture_failure"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "unknown"},
	}
	for _, tc := range tests {
		if got := Reason(tc.err); got != tc.want {
			t.Fatalf("Reason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
