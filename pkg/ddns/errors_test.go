package ddns

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"ddns error", New(KindTransient, "timeout"), KindTransient},
		{"wrapped ddns error", fmt.Errorf("outer: %w", New(KindNotFound, "no such record")), KindNotFound},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTransient, true},
		{KindRateLimited, true},
		{KindConfig, false},
		{KindAuthentication, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindState, false},
		{KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := IsRetryable(New(tt.kind, "x")); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	base := New(KindRateLimited, "slow down")
	withDelay := base.WithRetryAfter(30 * time.Second)

	if d, ok := RetryAfterOf(withDelay); !ok || d != 30*time.Second {
		t.Errorf("RetryAfterOf(withDelay) = %v, %v, want 30s, true", d, ok)
	}
	if _, ok := RetryAfterOf(base); ok {
		t.Error("RetryAfterOf(base) reported a delay it doesn't carry")
	}
	if _, ok := RetryAfterOf(errors.New("plain")); ok {
		t.Error("RetryAfterOf(plain error) reported a delay")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(KindTransient, "update failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is did not see through the wrapped cause")
	}
	if got := wrapped.Error(); got == "" {
		t.Error("Error() returned empty string")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(KindTransient, "message", nil); err != nil {
		t.Errorf("Wrap with nil cause = %v, want nil", err)
	}
}

func TestErrorMessageNeverEmpty(t *testing.T) {
	e := New(KindConfig, "missing api_token")
	if e.Error() == "" {
		t.Error("Error() must not be empty")
	}
}
