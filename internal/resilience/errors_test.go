package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("throttled"), 429), true},
		{"wrapped fmt", fmt.Errorf("graph: %w", NewTransientError(errors.New("x"), 503)), true},
		{"wrapped eris", eris.Wrap(NewTransientError(errors.New("x"), 502), "telegram: send"), true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"message", errors.New("read tcp: i/o timeout"), true},
		{"permanent", errors.New("graph: 400 bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 413} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not to be transient", code)
		}
	}
}

func TestForStatus(t *testing.T) {
	base := errors.New("boom")
	if !IsTransient(ForStatus(base, 503)) {
		t.Error("503 should wrap as transient")
	}
	if ForStatus(base, 400) != base {
		t.Error("400 should pass through unchanged")
	}
	if ForStatus(nil, 503) != nil {
		t.Error("nil stays nil")
	}
}

func TestTransientError_Message(t *testing.T) {
	err := NewTransientError(errors.New("slow down"), 429)
	if err.Error() != "slow down (status 429)" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if NewTransientError(errors.New("reset"), 0).Error() != "reset" {
		t.Error("status 0 should not be rendered")
	}
}
