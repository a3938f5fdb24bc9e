package errors

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestGatewayError(t *testing.T) {
	t.Run("error message format", func(t *testing.T) {
		err := NewQueueTimeoutError("batcher", "request deadline exceeded while queued")
		msg := err.Error()

		if msg == "" {
			t.Error("error message should not be empty")
		}

		contains := []string{"queue_timeout", "batcher", "504"}
		for _, s := range contains {
			if !strings.Contains(msg, s) {
				t.Errorf("error message should contain %q, got %q", s, msg)
			}
		}
	})

	t.Run("HTTP status codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      *GatewayError
			wantCode int
		}{
			{"input invalid", NewInputInvalidError("api", "msg"), 400},
			{"auth denied default", NewAuthDeniedError(0, "msg"), 401},
			{"auth denied forbidden", NewAuthDeniedError(http.StatusForbidden, "msg"), 403},
			{"guardrail block", NewGuardrailBlockedError("prompt_injection", "msg"), 403},
			{"queue timeout", NewQueueTimeoutError("batcher", "msg"), 504},
			{"inference failed", NewInferenceFailedError("backend", "msg"), 500},
			{"unsupported mode", NewUnsupportedModeError("api", "msg"), 501},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.HTTPStatusCode(); got != tt.wantCode {
					t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantCode)
				}
			})
		}
	})

	t.Run("zero status code defaults to 500", func(t *testing.T) {
		err := &GatewayError{Kind: KindInferenceFailed, Message: "boom"}
		if got := err.HTTPStatusCode(); got != http.StatusInternalServerError {
			t.Errorf("HTTPStatusCode() = %d, want 500", got)
		}
	})

	t.Run("request id tagging does not mutate original", func(t *testing.T) {
		orig := NewInputInvalidError("api", "missing message")
		tagged := orig.WithRequestID("req-123")

		if tagged.RequestID != "req-123" {
			t.Errorf("tagged.RequestID = %q, want req-123", tagged.RequestID)
		}
		if orig.RequestID != "" {
			t.Errorf("original mutated: RequestID = %q", orig.RequestID)
		}
	})
}

func TestAsGatewayError(t *testing.T) {
	t.Run("passes through gateway errors", func(t *testing.T) {
		orig := NewGuardrailBlockedError("prompt_injection", "blocked")
		got := AsGatewayError(fmt.Errorf("generate: %w", orig))
		if got.Kind != KindGuardrailBlocked {
			t.Errorf("Kind = %q, want %q", got.Kind, KindGuardrailBlocked)
		}
	})

	t.Run("wraps plain errors as inference failure", func(t *testing.T) {
		got := AsGatewayError(fmt.Errorf("connection refused"))
		if got.Kind != KindInferenceFailed {
			t.Errorf("Kind = %q, want %q", got.Kind, KindInferenceFailed)
		}
		if got.HTTPStatusCode() != http.StatusInternalServerError {
			t.Errorf("HTTPStatusCode() = %d, want 500", got.HTTPStatusCode())
		}
	})
}

func TestIsSoft(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"embedding failure is soft", NewEmbeddingFailedError("cache", "embed failed"), true},
		{"snapshot io is soft", NewSnapshotIOError("cache", "redis down"), true},
		{"wrapped soft error", fmt.Errorf("insert: %w", NewSnapshotIOError("cache", "redis down")), true},
		{"inference failure is hard", NewInferenceFailedError("backend", "oom"), false},
		{"plain error is hard", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSoft(tt.err); got != tt.want {
				t.Errorf("IsSoft() = %v, want %v", got, tt.want)
			}
		})
	}
}
