// Package errors provides structured error handling with i18n support.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input validation
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeDisplayNameEmpty   Code = "DISPLAY_NAME_EMPTY"
	CodeAnswerEmpty        Code = "ANSWER_EMPTY"
	CodeScoreOutOfRange    Code = "SCORE_OUT_OF_RANGE"
	CodeLevelOutOfRange    Code = "LEVEL_OUT_OF_RANGE"
	CodeTargetRoundsRange  Code = "TARGET_ROUNDS_OUT_OF_RANGE"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeParticipantUnknown Code = "PARTICIPANT_UNKNOWN"
	CodeRateLimited        Code = "RATE_LIMITED"

	// Integrity violations
	CodeSelfEvaluation         Code = "SELF_EVALUATION"
	CodeEvaluationAlreadySet   Code = "EVALUATION_ALREADY_SET"
	CodeSessionAlreadyFinished Code = "SESSION_ALREADY_FINISHED"

	// Protocol state
	CodeSessionNotActive Code = "SESSION_NOT_ACTIVE"
	CodeNotTurnHolder    Code = "NOT_TURN_HOLDER"
	CodePhaseMismatch    Code = "PHASE_MISMATCH"
	CodeRoundMismatch    Code = "ROUND_MISMATCH"
	CodeReportNotReady   Code = "REPORT_NOT_READY"
	CodeConflict         Code = "CONFLICT"

	// Capacity and lookup
	CodeNotFound        Code = "NOT_FOUND"
	CodeSessionFull     Code = "SESSION_FULL"
	CodeJoinCodeInvalid Code = "JOIN_CODE_INVALID"
	CodeVoteRoundStale  Code = "VOTE_ROUND_STALE"
	CodeVoteAlreadyCast Code = "VOTE_ALREADY_CAST"

	// Degraded capabilities
	CodePromptsExhausted    Code = "PROMPTS_EXHAUSTED"
	CodeRankingUnavailable  Code = "RANKING_UNAVAILABLE"
	CodeAnalysisUnavailable Code = "ANALYSIS_UNAVAILABLE"
	CodeUnavailable         Code = "UNAVAILABLE"
)

// Class groups codes by how a caller is expected to react.
type Class string

const (
	// ClassValidation marks malformed input.
	ClassValidation Class = "validation"
	// ClassIntegrity marks data-integrity violations that are never corrected silently.
	ClassIntegrity Class = "integrity"
	// ClassProtocol marks requests that are well formed but out of turn or out of phase.
	ClassProtocol Class = "protocol"
	// ClassLookup marks capacity and lookup failures; clients return to a safe entry point.
	ClassLookup Class = "lookup"
	// ClassDegraded marks unavailable optional capabilities.
	ClassDegraded Class = "degraded"
	// ClassInternal marks everything else.
	ClassInternal Class = "internal"
)

// Class returns the taxonomy bucket for the code.
func (c Code) Class() Class {
	switch c {
	case CodeInvalidArgument,
		CodeDisplayNameEmpty,
		CodeAnswerEmpty,
		CodeScoreOutOfRange,
		CodeLevelOutOfRange,
		CodeTargetRoundsRange,
		CodeUnauthenticated,
		CodeParticipantUnknown,
		CodeRateLimited:
		return ClassValidation
	case CodeSelfEvaluation,
		CodeEvaluationAlreadySet,
		CodeSessionAlreadyFinished:
		return ClassIntegrity
	case CodeSessionNotActive,
		CodeNotTurnHolder,
		CodePhaseMismatch,
		CodeRoundMismatch,
		CodeReportNotReady,
		CodeConflict:
		return ClassProtocol
	case CodeNotFound,
		CodeSessionFull,
		CodeJoinCodeInvalid,
		CodeVoteRoundStale,
		CodeVoteAlreadyCast:
		return ClassLookup
	case CodePromptsExhausted,
		CodeRankingUnavailable,
		CodeAnalysisUnavailable,
		CodeUnavailable:
		return ClassDegraded
	default:
		return ClassInternal
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument,
		CodeDisplayNameEmpty,
		CodeAnswerEmpty,
		CodeScoreOutOfRange,
		CodeLevelOutOfRange,
		CodeTargetRoundsRange,
		CodeParticipantUnknown:
		return codes.InvalidArgument

	case CodeUnauthenticated:
		return codes.Unauthenticated

	case CodeSelfEvaluation,
		CodeEvaluationAlreadySet,
		CodeSessionAlreadyFinished,
		CodeSessionNotActive,
		CodeNotTurnHolder,
		CodePhaseMismatch,
		CodeRoundMismatch,
		CodeReportNotReady,
		CodeVoteRoundStale,
		CodePromptsExhausted:
		return codes.FailedPrecondition

	case CodeConflict:
		return codes.Aborted

	case CodeNotFound,
		CodeJoinCodeInvalid:
		return codes.NotFound

	case CodeVoteAlreadyCast:
		return codes.AlreadyExists

	case CodeSessionFull,
		CodeRateLimited:
		return codes.ResourceExhausted

	case CodeRankingUnavailable,
		CodeAnalysisUnavailable,
		CodeUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for the JSON API.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		if c == CodeRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusConflict
	case codes.FailedPrecondition, codes.Aborted, codes.AlreadyExists:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
