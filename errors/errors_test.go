package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"store unavailable", ErrStoreUnavailable, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped store unavailable", fmt.Errorf("put: %w", ErrStoreUnavailable), true},
		{"invalid input", ErrInvalidInput, false},
		{"classified transient", WrapTransient(errors.New("flaky"), "Store", "Put", "write"), true},
		{"classified invalid", WrapInvalid(errors.New("bad"), "Store", "Put", "write"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid input", ErrInvalidInput, true},
		{"invalid query", ErrInvalidQuery, true},
		{"unsupported property type", ErrUnsupportedPropertyType, true},
		{"store unavailable", ErrStoreUnavailable, false},
		{"classified invalid", WrapInvalid(errors.New("bad channel"), "Mediator", "OnAfterMessageStore", "validate"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsInvalid(test.err); got != test.expected {
				t.Errorf("IsInvalid(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestMappingConflictError(t *testing.T) {
	err := &MappingConflictError{Name: "temp", Existing: "double", Requested: "long"}

	if !IsMappingConflict(err) {
		t.Error("expected IsMappingConflict to match MappingConflictError")
	}
	if !errors.Is(err, ErrMappingConflict) {
		t.Error("expected errors.Is match against ErrMappingConflict")
	}

	wrapped := Wrap(err, "Schema", "EnsureMetricMapping", "register mapping")
	if !IsMappingConflict(wrapped) {
		t.Error("expected IsMappingConflict to match wrapped conflict")
	}

	var mce *MappingConflictError
	if !errors.As(wrapped, &mce) {
		t.Fatal("expected errors.As to recover MappingConflictError")
	}
	if mce.Existing != "double" || mce.Requested != "long" {
		t.Errorf("unexpected conflict detail: %+v", mce)
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("bucket missing")
	err := Wrap(base, "ClientInfoRegistry", "Find", "lookup")

	expected := "ClientInfoRegistry.Find: lookup failed: bucket missing"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to match base")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("expected nil wrap of nil error")
	}
}

func TestClassify(t *testing.T) {
	if Classify(ErrStoreUnavailable) != ErrorTransient {
		t.Error("store unavailable should classify transient")
	}
	if Classify(ErrInvalidQuery) != ErrorInvalid {
		t.Error("invalid query should classify invalid")
	}
	if Classify(WrapFatal(errors.New("corrupt index"), "Schema", "Metadata", "decode")) != ErrorFatal {
		t.Error("classified fatal should classify fatal")
	}
	if Classify(errors.New("mystery")) != ErrorTransient {
		t.Error("unknown errors default to transient")
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := ErrNotFound
	ce := WrapInvalid(base, "MetricInfoRegistry", "Delete", "remove")

	if !errors.Is(ce, base) {
		t.Error("expected classified error to unwrap to base")
	}

	var classified *ClassifiedError
	if !errors.As(ce, &classified) {
		t.Fatal("expected errors.As to recover ClassifiedError")
	}
	if classified.Component != "MetricInfoRegistry" || classified.Operation != "Delete" {
		t.Errorf("unexpected context: %+v", classified)
	}
}
