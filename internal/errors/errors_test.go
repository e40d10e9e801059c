package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedCodes(t *testing.T) {
	inner := New(ErrIntegrity, "hash mismatch")
	outer := fmt.Errorf("upload: %w", inner)

	if !Is(outer, ErrIntegrity) {
		t.Error("expected code match through a wrapped chain")
	}
	if Is(outer, ErrPermission) {
		t.Error("unexpected code match")
	}
	if Is(nil, ErrIntegrity) {
		t.Error("nil error must not match")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrStorage, "failed to write archive", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if CodeOf(err) != ErrStorage {
		t.Errorf("unexpected code %s", CodeOf(err))
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(stderrors.New("plain")) != ErrInternal {
		t.Error("plain errors default to INTERNAL")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error has no code")
	}
}
