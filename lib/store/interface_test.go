package store

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	err := WrapError(RetCIOError, "read failed", fs.ErrPermission)

	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("expected errors.Is to find the cause")
	}

	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected errors.As to find *Error")
	}
	if storeErr.Code != RetCIOError {
		t.Errorf("expected code %s, got %s", RetCIOError, storeErr.Code)
	}
	if !strings.Contains(err.Error(), "IOError") || !strings.Contains(err.Error(), "read failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if err := WrapError(RetCIOError, "nothing happened", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestRetCodeString(t *testing.T) {
	tests := []struct {
		code RetCode
		want string
	}{
		{RetCSuccess, "Success"},
		{RetCInternalError, "InternalError"},
		{RetCUnsupportedOperation, "UnsupportedOperation"},
		{RetCInvalidOperation, "InvalidOperation"},
		{RetCIOError, "IOError"},
		{RetCSerializationError, "SerializationError"},
		{RetCode(99), "Unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("RetCode(%d).String() = %q, want %q", uint64(tt.code), got, tt.want)
		}
	}
}
