package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeToolFailure, cause, "调用工具失败", WithMetadata("tool", "get_address_info"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if CodeOf(fmt.Errorf("outer: %w", err)) != CodeToolFailure {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if err.Metadata()["tool"] != "get_address_info" {
		t.Fatalf("metadata lost: %+v", err.Metadata())
	}
	if want := "[TOOL_FAILURE] 调用工具失败: connection refused"; err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIsComparesCodes(t *testing.T) {
	a := New(CodeToolNotAllowed, "first")
	b := New(CodeToolNotAllowed, "second")
	if !stdErrors.Is(a, b) {
		t.Fatalf("errors with the same code should match")
	}
	if stdErrors.Is(a, New(CodeToolNotFound, "")) {
		t.Fatalf("errors with different codes should not match")
	}
}

func TestRetryableDefaultsAndOverride(t *testing.T) {
	if !RetryableError(New(CodeLLMFailure, "")) {
		t.Fatalf("llm failures should be retryable by default")
	}
	if RetryableError(New(CodeLLMFailure, "", WithRetryable(false))) {
		t.Fatalf("override should disable retry")
	}
	if RetryableError(stdErrors.New("plain")) {
		t.Fatalf("plain errors are never retryable")
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Retryable: true})

	err := New(code, "")
	if err.Message() != "custom" {
		t.Fatalf("default message not applied: %q", err.Message())
	}
	if SeverityOf(err) != SeverityWarning {
		t.Fatalf("unexpected severity: %s", SeverityOf(err))
	}
	if AttributesOf("MISSING").Message != AttributesOf(CodeUnknown).Message {
		t.Fatalf("unknown codes should fall back to UNKNOWN")
	}
}
