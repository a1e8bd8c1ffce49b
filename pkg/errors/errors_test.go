// errors_test.go — 验证 AppError / Wrap / Wrapf 的行为契约。
package errors

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// TestWrapUnwrap 验证 Wrap 保留原始错误链，errors.Is 和 errors.As 正常工作。
func TestWrapUnwrap(t *testing.T) {
	original := ErrNoInterrupt
	wrapped := Wrap(original, "Session.Resume", "nothing to resume")

	if !errors.Is(wrapped, ErrNoInterrupt) {
		t.Errorf("errors.Is(wrapped, ErrNoInterrupt) = false, want true")
	}
	if errors.Is(wrapped, ErrTimeout) {
		t.Errorf("errors.Is(wrapped, ErrTimeout) = true, want false")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatalf("errors.As failed to extract *AppError")
	}
	if appErr.Op != "Session.Resume" {
		t.Errorf("Op = %q, want %q", appErr.Op, "Session.Resume")
	}
	if appErr.Message != "nothing to resume" {
		t.Errorf("Message = %q, want %q", appErr.Message, "nothing to resume")
	}
}

func TestWrapErrorString(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	wrapped := Wrap(cause, "Socket.Read", "read failed")

	s := wrapped.Error()
	for _, want := range []string{"Socket.Read", "read failed", "unexpected EOF"} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q, missing %q", s, want)
		}
	}
}

// TestWrapfFormat 验证 Wrapf 格式化消息。
func TestWrapfFormat(t *testing.T) {
	cause := ErrInvalidInput
	wrapped := Wrapf(cause, "PlanForm.Validate", "section %d invalid: %s", 2, "no title")

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As failed")
	}
	if !strings.Contains(appErr.Message, "section 2 invalid: no title") {
		t.Errorf("Message = %q, want to contain 'section 2 invalid: no title'", appErr.Message)
	}
}

// TestNewWithoutCause 验证 New 创建无 cause 的错误。
func TestNewWithoutCause(t *testing.T) {
	err := New("Init", "failed to start")
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed")
	}
	if appErr.Err != nil {
		t.Errorf("Err = %v, want nil", appErr.Err)
	}
	if errors.Unwrap(err) != nil {
		t.Errorf("Unwrap = %v, want nil", errors.Unwrap(err))
	}
}

// TestDoubleWrap 验证二次包装时 errors.Is 仍能找到最深层哨兵。
func TestDoubleWrap(t *testing.T) {
	inner := Wrap(ErrNotFound, "REST.ThreadState", "thread missing")
	outer := Wrap(inner, "Session.SelectThread", "state fetch failed")

	if !errors.Is(outer, ErrNotFound) {
		t.Error("errors.Is(outer, ErrNotFound) = false after double wrap")
	}

	var appErr *AppError
	if !errors.As(outer, &appErr) {
		t.Fatal("errors.As failed on outer")
	}
	if appErr.Op != "Session.SelectThread" {
		t.Errorf("Op = %q, want Session.SelectThread", appErr.Op)
	}
}

// TestWithCode 验证 WithCode 保留错误码与原因链。
func TestWithCode(t *testing.T) {
	err := WithCode(ErrThreadMismatch, "Session.Resume", "PROTOCOL", "wrong thread")
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed")
	}
	if appErr.Code != "PROTOCOL" {
		t.Errorf("Code = %q, want PROTOCOL", appErr.Code)
	}
	if !errors.Is(err, ErrThreadMismatch) {
		t.Error("errors.Is lost the sentinel through WithCode")
	}
}
