package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"not found", NotFound("no parcel for %s", "x"), FailureNotFound},
		{"transient", Transient(errors.New("timeout"), "fetch"), FailureTransient},
		{"config missing", ConfigMissing("chrome unavailable"), FailureConfigMissing},
		{"fatal", Fatal(errors.New("boom"), "unexpected"), FailureFatal},
		{"wrapped classified", fmt.Errorf("stage: %w", Transient(nil, "slow")), FailureTransient},
		{"deadline maps to transient", context.DeadlineExceeded, FailureTransient},
		{"plain error is fatal", errors.New("boom"), FailureFatal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Transient(errors.New("connection reset"), "fetching page")
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	if !errors.Is(err, err.Cause) {
		t.Errorf("Unwrap should expose the cause")
	}
	if !IsKind(err, FailureTransient) {
		t.Errorf("IsKind failed for transient error")
	}
	if IsKind(nil, FailureTransient) {
		t.Errorf("IsKind should be false for nil")
	}
}
