package errs

import (
	"errors"
	"testing"
)

func TestNew_DefaultsBySeverityAndRetryable(t *testing.T) {
	tests := []struct {
		kind          Kind
		wantSeverity  int
		wantRetryable bool
	}{
		{Validation, 400, false},
		{Authorization, 403, false},
		{NotFound, 404, false},
		{BusinessLogic, 422, false},
		{Storage, 500, true},
	}

	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := New(tc.kind, "boom")

			if err.Severity != tc.wantSeverity {
				t.Errorf("Severity = %d, want %d", err.Severity, tc.wantSeverity)
			}

			if err.Retryable != tc.wantRetryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tc.wantRetryable)
			}
		})
	}
}

func TestWrap_PreservesUnderlyingCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Storage, "upsert failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped error to unwrap to cause")
	}

	if KindOf(err) != Storage {
		t.Errorf("KindOf = %v, want Storage", KindOf(err))
	}
}

func TestWrap_DoesNotDoubleWrapSameKind(t *testing.T) {
	inner := New(Validation, "bad input")
	outer := Wrap(Validation, "wrapped again", inner)

	if outer != inner {
		t.Errorf("expected Wrap to return the same *Error when kinds match")
	}
}

func TestKindOf_NonTaxonomyError(t *testing.T) {
	if KindOf(errors.New("plain")) != Unknown {
		t.Errorf("expected Unknown for a non-taxonomy error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(Storage, "timeout")) {
		t.Errorf("expected Storage error to be retryable by default")
	}

	if IsRetryable(New(Validation, "bad")) {
		t.Errorf("expected Validation error to not be retryable by default")
	}

	if IsRetryable(errors.New("plain")) {
		t.Errorf("expected plain error to not be retryable")
	}
}

func TestWithRetryable_Override(t *testing.T) {
	err := New(BusinessLogic, "quota exceeded").WithRetryable(true)
	if !err.Retryable {
		t.Errorf("expected override to set Retryable = true")
	}
}
