package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	meta := MetadataFor(CodeInsufficientFunds)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
	if !meta.Retryable {
		t.Fatal("insufficient funds should be retryable")
	}

	fallback := MetadataFor(Code("nope"))
	if fallback.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should map to internal, got %d", fallback.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "redis down")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause in chain")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", err.Code())
	}
}

func TestAsThroughFmtWrap(t *testing.T) {
	typed := New(CodeValidation, "bad input").WithDetails(map[string]string{"field": "period"})
	wrapped := fmt.Errorf("handler: %w", typed)

	got := As(wrapped)
	if got == nil {
		t.Fatal("expected typed error through fmt wrap")
	}
	if got.Code() != CodeValidation {
		t.Fatalf("unexpected code: %s", got.Code())
	}
	if !IsCode(wrapped, CodeValidation) {
		t.Fatal("IsCode should match through the chain")
	}
}

func TestDumpChain(t *testing.T) {
	err := Wrap(CodeInternal, stdErrors.New("low level"), "high level")
	d := Dump(err)

	if d.Code != CodeInternal {
		t.Fatalf("unexpected code: %s", d.Code)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}
}
