package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		code pq.ErrorCode
		want ErrorClass
	}{
		{"40001", ErrorClassSerialization},
		{"40P01", ErrorClassDeadlock},
		{"55P03", ErrorClassTransient},
		{"23505", ErrorClassPermanent},
		{"23503", ErrorClassPermanent},
	}

	for _, c := range cases {
		err := &pq.Error{Code: c.code}
		if got := ClassifyError(err); got != c.want {
			t.Errorf("ClassifyError(%s) = %v, want %v", c.code, got, c.want)
		}
	}

	if got := ClassifyError(nil); got != ErrorClassPermanent {
		t.Errorf("nil should classify permanent, got %v", got)
	}

	wrapped := fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40001"})
	if !IsRetryable(wrapped) {
		t.Error("wrapped serialization failure should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("plain errors are not retryable")
	}
}

func TestErrorKinds(t *testing.T) {
	if !IsNotFound(fmt.Errorf("%w: shirt", ErrProductNotFound)) {
		t.Error("wrapped not-found should match")
	}
	if !IsValidation(fmt.Errorf("%w for shirt: available 1, requested 2", ErrInsufficientStock)) {
		t.Error("wrapped insufficient stock is a validation error")
	}
	if !IsDuplicate(&pq.Error{Code: "23505"}) {
		t.Error("unique violation is a duplicate")
	}
	if IsValidation(ErrOrderNotFound) {
		t.Error("not-found is not a validation error")
	}
}

func TestInternalize(t *testing.T) {
	if got := Internalize(nil, "op"); got != nil {
		t.Errorf("nil stays nil, got %v", got)
	}

	known := fmt.Errorf("%w: shirt", ErrInsufficientStock)
	if got := Internalize(known, "create order"); !errors.Is(got, ErrInsufficientStock) {
		t.Errorf("known kinds keep their identity, got %v", got)
	}

	got := Internalize(errors.New("pq: connection reset"), "create order")
	if !errors.Is(got, ErrInternal) {
		t.Errorf("unknown errors become internal, got %v", got)
	}
	if errors.Is(got, ErrInsufficientStock) {
		t.Error("internalized error must not match a known kind")
	}
}
