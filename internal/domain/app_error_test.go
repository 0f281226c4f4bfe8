package domain_test

import (
	"errors"
	"testing"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

func TestIsRetriable_NonAppErrorIsFalse(t *testing.T) {
	if domain.IsRetriable(errors.New("plain error")) {
		t.Fatal("expected a plain error to be non-retriable")
	}
}

func TestIsRetriable_RespectsConstructor(t *testing.T) {
	if domain.IsRetriable(domain.NewAppError(domain.CodeValidation, "bad input")) {
		t.Fatal("expected NewAppError to produce a non-retriable error")
	}
	if !domain.IsRetriable(domain.NewRetriableError(domain.CodeAIServiceTransient, "upstream down")) {
		t.Fatal("expected NewRetriableError to produce a retriable error")
	}
}

func TestIsRetriable_UnwrapsWrappedCause(t *testing.T) {
	wrapped := domain.NewRetriableError(domain.CodeAIServiceTransient, "upstream down").Wrap(errors.New("dial tcp: timeout"))
	if !domain.IsRetriable(wrapped) {
		t.Fatal("expected the retriable bit to survive Wrap")
	}
}

func TestCodeOf_ExtractsCode(t *testing.T) {
	err := domain.NewAppError(domain.CodeTooManyProducts, "too many")
	if domain.CodeOf(err) != domain.CodeTooManyProducts {
		t.Fatalf("expected CodeTooManyProducts, got %s", domain.CodeOf(err))
	}
}

func TestCodeOf_DefaultsToInternalForNonAppError(t *testing.T) {
	if domain.CodeOf(errors.New("plain error")) != domain.CodeInternal {
		t.Fatal("expected a plain error to classify as CodeInternal")
	}
}

func TestAppError_ErrorStringIncludesCauseWhenWrapped(t *testing.T) {
	base := domain.NewAppError(domain.CodeInternal, "boom")
	wrapped := base.Wrap(errors.New("root cause"))
	if wrapped.Error() == base.Error() {
		t.Fatal("expected the wrapped error's message to differ from the unwrapped one")
	}
	if errors.Unwrap(wrapped) == nil {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
