package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"read only", ErrReadOnly, http.StatusBadRequest},
		{"unknown identifier", ErrUnknownIdentifier, http.StatusNotFound},
		{"not found", NotFoundError{Path: "/cp/checkplot-1.pkl"}, http.StatusNotFound},
		{"invalid input", fmt.Errorf("%w: missing field", ErrInvalidInput), http.StatusBadRequest},
		{"malformed bundle", fmt.Errorf("%w: two folds", ErrMalformedBundle), http.StatusBadRequest},
		{"insufficient peaks", ErrInsufficientPeaks, http.StatusBadRequest},
		{"invalid parameter", InvalidParameterError{Name: "startp", Reason: "must be positive"}, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusInternalServerError},
		{"backend failure", fmt.Errorf("%w: disk", ErrBackendFailure), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("%s: StatusCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := NotFoundError{Path: "/cp/checkplot-HAT-1.pkl"}
	want := "couldn't find checkplot /cp/checkplot-HAT-1.pkl"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestWithMessageKeepsCauseAndText(t *testing.T) {
	err := WithMessage(ErrInvalidInput, "No checkplot provided to load.")
	if err.Error() != "No checkplot provided to load." {
		t.Fatalf("wire message altered: %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cause lost from unwrap chain")
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("status mapping lost: %d", StatusCode(err))
	}
}
