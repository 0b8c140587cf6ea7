package channels

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")

	e := ErrConnection("dial failed", cause)
	if !strings.Contains(e.Error(), "CONNECTION_ERROR") || !strings.Contains(e.Error(), "connection refused") {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}

	bare := ErrConfig("token is required", nil)
	if !strings.Contains(bare.Error(), "CONFIG_ERROR") {
		t.Errorf("Error() = %q", bare.Error())
	}
	if errors.Unwrap(bare) != nil {
		t.Error("Unwrap of bare error should be nil")
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  *Error
		code ErrorCode
	}{
		{ErrConfig("x", nil), ErrCodeConfig},
		{ErrConnection("x", nil), ErrCodeConnection},
		{ErrSend("x", nil), ErrCodeSend},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
		}
	}
}
