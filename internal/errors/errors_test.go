package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("dial tcp: timeout")
	err := Wrap(CodeUpstreamUnavailable, cause, "binance 请求失败", WithMetadata("source", "binance"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if CodeOf(err) != CodeUpstreamUnavailable {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if err.Metadata()["source"] != "binance" {
		t.Fatalf("metadata missing: %+v", err.Metadata())
	}

	outer := fmt.Errorf("publish: %w", err)
	if !stdErrors.Is(outer, New(CodeUpstreamUnavailable, "")) {
		t.Fatalf("expected errors.Is to match by code through wrapping")
	}
	if stdErrors.Is(outer, New(CodeSigningFailure, "")) {
		t.Fatalf("codes must not match across kinds")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{New(CodeUnknownIntent, ""), http.StatusBadRequest},
		{New(CodeUpstreamUnavailable, ""), http.StatusBadGateway},
		{stdErrors.New("plain"), http.StatusInternalServerError},
		{New(Code("NOT_REGISTERED_ANYWHERE"), ""), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusOf(tc.err); got != tc.want {
			t.Fatalf("HTTPStatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestSeverityOverride(t *testing.T) {
	err := New(CodeInvalidAmount, "", WithSeverity(SeverityCritical))
	if err.Severity() != SeverityCritical {
		t.Fatalf("expected override, got %s", err.Severity())
	}
	if err.Message() != AttributesOf(CodeInvalidAmount).Message {
		t.Fatalf("expected default message, got %q", err.Message())
	}
}
