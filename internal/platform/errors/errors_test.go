package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("submit: %w", New(CodeSelfEvaluation, "evaluator is responder"))
	if got := CodeOf(err); got != CodeSelfEvaluation {
		t.Fatalf("CodeOf = %s, want %s", got, CodeSelfEvaluation)
	}
	if !errors.Is(err, New(CodeSelfEvaluation, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatal("expected unknown code for plain error")
	}
}

func TestWrapMessageFallback(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeUnknown, "", cause)
	if err.Error() != "disk full" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code  Code
		class Class
		grpc  codes.Code
		http  int
	}{
		{CodeSelfEvaluation, ClassIntegrity, codes.FailedPrecondition, http.StatusConflict},
		{CodeSessionFull, ClassLookup, codes.ResourceExhausted, http.StatusConflict},
		{CodeJoinCodeInvalid, ClassLookup, codes.NotFound, http.StatusNotFound},
		{CodeScoreOutOfRange, ClassValidation, codes.InvalidArgument, http.StatusBadRequest},
		{CodeAnalysisUnavailable, ClassDegraded, codes.Unavailable, http.StatusServiceUnavailable},
		{CodeConflict, ClassProtocol, codes.Aborted, http.StatusConflict},
		{CodeRateLimited, ClassValidation, codes.ResourceExhausted, http.StatusTooManyRequests},
		{CodeUnavailable, ClassDegraded, codes.Unavailable, http.StatusServiceUnavailable},
		{CodeUnknown, ClassInternal, codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.Class(); got != tt.class {
			t.Fatalf("%s.Class() = %s, want %s", tt.code, got, tt.class)
		}
		if got := tt.code.GRPCCode(); got != tt.grpc {
			t.Fatalf("%s.GRPCCode() = %v, want %v", tt.code, got, tt.grpc)
		}
		if got := tt.code.HTTPStatus(); got != tt.http {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.http)
		}
	}
}

func TestToGRPCStatusDetails(t *testing.T) {
	err := WithMetadata(CodeRoundMismatch, "round 2 expected 3", map[string]string{"Round": "2"})
	st := status.Convert(err.ToGRPCStatus("en-US", "Round 2 is no longer current."))
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("code = %v", st.Code())
	}
	var sawInfo, sawLocalized bool
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			sawInfo = v.Reason == string(CodeRoundMismatch) && v.Metadata["Round"] == "2"
		case *errdetails.LocalizedMessage:
			sawLocalized = v.Locale == "en-US"
		}
	}
	if !sawInfo || !sawLocalized {
		t.Fatalf("details = %v", st.Details())
	}
}
