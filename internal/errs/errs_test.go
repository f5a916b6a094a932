package errs

import "testing"

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[string]int{
		CodeInvalidJSON:          400,
		CodeValidationError:      400,
		CodeUnsupportedMediaType: 415,
		CodePayloadTooLarge:      413,
		CodeBodyReadTimeout:      408,
		CodeUnauthorized:         401,
		CodeForbidden:            403,
		CodeRateLimited:          429,
		CodeServerBusy:           503,
		CodeQueueTimeout:         503,
		CodeTimeout:              504,
		CodeStreamIdleTimeout:    500,
		CodeInternal:             500,
		"made_up_code":           500,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestUnauthorizedDefaultsMessage(t *testing.T) {
	err := Unauthorized("")
	if err.Message == "" {
		t.Fatal("expected a default message")
	}
	if err.Code != CodeUnauthorized || err.StatusCode != 401 {
		t.Fatalf("unexpected code/status: %+v", err)
	}
}

func TestAsCodedWrapsPlainError(t *testing.T) {
	if AsCoded(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
	wrapped := AsCoded(errPlain("boom"))
	if wrapped.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", wrapped.Code)
	}

	already := Timeout()
	if AsCoded(already) != already {
		t.Fatal("expected the same *CodedError to pass through unchanged")
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestCodedErrorUnwrap(t *testing.T) {
	cause := errPlain("disk on fire")
	ce := Internal(cause)
	if ce.Unwrap() != error(cause) {
		t.Fatal("expected Unwrap to return the wrapped cause")
	}
	if ce.Message != cause.Error() {
		t.Fatalf("expected message to mirror the cause, got %q", ce.Message)
	}
}
