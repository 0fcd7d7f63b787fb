package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "canceled", err: context.Canceled, want: ErrorClassification{}},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: ErrorClassification{}},
		{name: "breaker open", err: gobreaker.ErrOpenState, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "503", err: &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "429 wrapped", err: fmt.Errorf("x: %w", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}), want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "404", err: &HTTPStatusError{StatusCode: http.StatusNotFound}, want: ErrorClassification{}},
		{name: "network", err: fmt.Errorf("dial: %w", timeoutError{}), want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "decode", err: errors.New("decode response: unexpected EOF"), want: ErrorClassification{RecordFailure: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTP(tc.err); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestWrapTemporary(t *testing.T) {
	retryable := &HTTPStatusError{Service: "mail", Operation: "send", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
	if err := WrapTemporary("mail send", retryable, ClassifyHTTP); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}

	permanent := &HTTPStatusError{StatusCode: http.StatusBadRequest}
	if err := WrapTemporary("mail send", permanent, ClassifyHTTP); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error to stay unwrapped, got %v", err)
	}

	if err := WrapTemporary("op", gobreaker.ErrOpenState, nil); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open breaker to be temporary")
	}
	if WrapTemporary("op", nil, ClassifyHTTP) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	err := &HTTPStatusError{Service: "extraction", Operation: "status", Status: "502 Bad Gateway", Body: " upstream down \n"}
	if got := err.Error(); got != "extraction status status: 502 Bad Gateway: upstream down" {
		t.Fatalf("unexpected message %q", got)
	}
}
