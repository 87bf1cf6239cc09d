package errors

import (
	"fmt"
	"testing"
)

func TestErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want uint8
	}{
		{"nil", nil, StatusNoError},
		{"unavailable", ErrUnavailable, StatusGenErr},
		{"wrapped unavailable", Wrap(ErrUnavailable, "get 1.2.3"), StatusGenErr},
		{"read only", ErrReadOnly, StatusNotWritable},
		{"unknown", fmt.Errorf("boom"), StatusGenErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorToStatus(tt.err); got != tt.want {
				t.Errorf("ErrorToStatus(%v) = %s, want %s", tt.err, StatusName(got), StatusName(tt.want))
			}
		})
	}
}

func TestIsDiscard(t *testing.T) {
	if !IsDiscard(Wrapf(ErrInsufficientData, "update %q", "latency_us")) {
		t.Error("wrapped ErrInsufficientData should be a discard")
	}
	if !IsDiscard(ErrUnknownStatistic) {
		t.Error("ErrUnknownStatistic should be a discard")
	}
	if IsDiscard(ErrConnectionFailed) {
		t.Error("ErrConnectionFailed is fatal, not a discard")
	}
	if !IsFatal(Wrap(ErrConnectionFailed, "dial")) {
		t.Error("wrapped ErrConnectionFailed should be fatal")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddField("statistics[0].root", "cannot be empty")
	v.AddMissing("statistics[1].name")
	v.Add(nil)

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if len(v.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2", len(v.Errors))
	}
	if !Is(err, ErrMissingField) {
		t.Error("errors.Is should find ErrMissingField in the collection")
	}
	if !Is(err, ErrInvalidConfig) {
		t.Error("errors.Is should find ErrInvalidConfig in the collection")
	}
	if !IsValidation(err) {
		t.Error("IsValidation should hold")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
