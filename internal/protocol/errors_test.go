package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		StatusOK,
		ErrBadRequest,
		ErrNotFound,
		ErrAuthority,
		ErrTimeout,
		ErrApplicationError,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrAuthority) || !Retryable(ErrTimeout) {
		t.Fatalf("authority and timeout failures must be retryable")
	}
	for _, c := range []string{StatusOK, ErrBadRequest, ErrNotFound, ErrApplicationError, ErrInternal} {
		if Retryable(c) {
			t.Fatalf("%q should not be retryable", c)
		}
	}
}
