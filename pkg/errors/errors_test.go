package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("root")
	err := Wrap(CodeDependency, cause, "sheets unreachable")

	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestAsUnwrapsNestedError(t *testing.T) {
	inner := New(CodeStateConflict, "already paid")
	wrapped := stdErrors.Join(stdErrors.New("outer"), inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", typed.Code())
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeValidation, stdErrors.New("bad row"), "normalize")
	dump := Dump(err)
	if dump.Code != CodeValidation {
		t.Fatalf("expected validation code, got %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
}
