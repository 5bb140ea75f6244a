package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"

	// ErrCodeConcurrentModification is returned when an optimistic-concurrency
	// write loses the race against another writer.  Callers must re-read the
	// current state before retrying.
	ErrCodeConcurrentModification ErrorCode = "COMMON_016"
)

// Aliases used widely across the codebase.
const (
	CodeInternal               = ErrCodeInternal
	CodeInvalidParam           = ErrCodeBadRequest
	CodeUnauthorized           = ErrCodeUnauthorized
	CodeForbidden              = ErrCodeForbidden
	CodeNotFound               = ErrCodeNotFound
	CodeConflict               = ErrCodeConflict
	CodeDatabaseError          = ErrCodeDatabaseError
	CodeDBQueryError           = ErrCodeDatabaseError
	CodeDBConnectionError      = ErrCodeDatabaseError
	CodeCacheError             = ErrCodeCacheError
	CodeConcurrentModification = ErrCodeConcurrentModification
	CodeOK                     = ErrorCode("OK")
)

// Molecule Batch Ingestion Error Codes
const (
	// ErrCodeMalformedStructure: the structure notation could not be parsed in
	// the declared format.
	ErrCodeMalformedStructure ErrorCode = "MOLB_001"
	// ErrCodePolicyViolation: the structure parsed but violates a configured
	// policy (blacklisted element, heavy-atom bound).
	ErrCodePolicyViolation ErrorCode = "MOLB_002"
	// ErrCodeDuplicateInBatch: an earlier row in the same batch already claimed
	// this canonical key.
	ErrCodeDuplicateInBatch ErrorCode = "MOLB_003"
	// ErrCodeBatchTooLarge: the upload exceeds the configured row ceiling.
	ErrCodeBatchTooLarge ErrorCode = "MOLB_004"
	// ErrCodeMoleculeNotFound: no molecule with the given id or canonical key.
	ErrCodeMoleculeNotFound ErrorCode = "MOLB_005"
	// ErrCodeUnsupportedFormat: the declared structure format is not supported.
	ErrCodeUnsupportedFormat ErrorCode = "MOLB_006"
)

// Prediction Pipeline Error Codes
const (
	// ErrCodeExternalCallFailure: a single prediction-engine call failed or
	// timed out; the job remains retryable.
	ErrCodeExternalCallFailure ErrorCode = "PRED_001"
	// ErrCodeExternalCallExhausted: the retry ceiling was reached; the job is
	// terminally FAILED and surfaced for operator attention.
	ErrCodeExternalCallExhausted ErrorCode = "PRED_002"
	// ErrCodePredictionJobNotFound: no prediction job with the given id.
	ErrCodePredictionJobNotFound ErrorCode = "PRED_003"
	// ErrCodeMalformedEngineResponse: the engine answered with a payload that
	// cannot be mapped back onto the submitted molecules.
	ErrCodeMalformedEngineResponse ErrorCode = "PRED_004"
)

// Submission Lifecycle Error Codes
const (
	// ErrCodeInvalidTransition: the requested status edge is not in the legal
	// transition table for the current state.
	ErrCodeInvalidTransition ErrorCode = "SUBM_001"
	// ErrCodeInvalidState: the operation is not permitted while the submission
	// is in its current status (e.g. attaching results before IN_PROGRESS).
	ErrCodeInvalidState ErrorCode = "SUBM_002"
	// ErrCodeUnknownMolecule: a result payload references a molecule outside
	// the submission's frozen snapshot.
	ErrCodeUnknownMolecule ErrorCode = "SUBM_003"
	// ErrCodeSubmissionNotFound: no submission with the given id.
	ErrCodeSubmissionNotFound ErrorCode = "SUBM_004"
	// ErrCodeRoleNotPermitted: the acting role may not perform this edge.
	ErrCodeRoleNotPermitted ErrorCode = "SUBM_005"
	// ErrCodeEmptySubmission: a submission must reference at least one molecule.
	ErrCodeEmptySubmission ErrorCode = "SUBM_006"
	// ErrCodeResultSetNotFound: no result set attached to the submission.
	ErrCodeResultSetNotFound ErrorCode = "SUBM_007"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:               http.StatusInternalServerError,
	ErrCodeBadRequest:             http.StatusBadRequest,
	ErrCodeUnauthorized:           http.StatusUnauthorized,
	ErrCodeForbidden:              http.StatusForbidden,
	ErrCodeNotFound:               http.StatusNotFound,
	ErrCodeConflict:               http.StatusConflict,
	ErrCodeTooManyRequests:        http.StatusTooManyRequests,
	ErrCodeServiceUnavailable:     http.StatusServiceUnavailable,
	ErrCodeTimeout:                http.StatusGatewayTimeout,
	ErrCodeValidation:             http.StatusUnprocessableEntity,
	ErrCodeSerialization:          http.StatusInternalServerError,
	ErrCodeDatabaseError:          http.StatusInternalServerError,
	ErrCodeCacheError:             http.StatusInternalServerError,
	ErrCodeExternalService:        http.StatusBadGateway,
	ErrCodeNotImplemented:         http.StatusNotImplemented,
	ErrCodeConcurrentModification: http.StatusConflict,

	ErrCodeMalformedStructure: http.StatusBadRequest,
	ErrCodePolicyViolation:    http.StatusBadRequest,
	ErrCodeDuplicateInBatch:   http.StatusConflict,
	ErrCodeBatchTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeMoleculeNotFound:   http.StatusNotFound,
	ErrCodeUnsupportedFormat:  http.StatusBadRequest,

	ErrCodeExternalCallFailure:     http.StatusBadGateway,
	ErrCodeExternalCallExhausted:   http.StatusBadGateway,
	ErrCodePredictionJobNotFound:   http.StatusNotFound,
	ErrCodeMalformedEngineResponse: http.StatusBadGateway,

	ErrCodeInvalidTransition:  http.StatusConflict,
	ErrCodeInvalidState:       http.StatusConflict,
	ErrCodeUnknownMolecule:    http.StatusBadRequest,
	ErrCodeSubmissionNotFound: http.StatusNotFound,
	ErrCodeRoleNotPermitted:   http.StatusForbidden,
	ErrCodeEmptySubmission:    http.StatusBadRequest,
	ErrCodeResultSetNotFound:  http.StatusNotFound,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:               "internal server error",
	ErrCodeBadRequest:             "bad request",
	ErrCodeUnauthorized:           "unauthorized",
	ErrCodeForbidden:              "forbidden",
	ErrCodeNotFound:               "resource not found",
	ErrCodeConflict:               "resource conflict",
	ErrCodeTooManyRequests:        "too many requests",
	ErrCodeServiceUnavailable:     "service unavailable",
	ErrCodeTimeout:                "request timeout",
	ErrCodeValidation:             "validation failed",
	ErrCodeSerialization:          "serialization failed",
	ErrCodeDatabaseError:          "database error",
	ErrCodeCacheError:             "cache error",
	ErrCodeExternalService:        "external service error",
	ErrCodeNotImplemented:         "not implemented",
	ErrCodeConcurrentModification: "concurrent modification detected",

	ErrCodeMalformedStructure: "malformed chemical structure",
	ErrCodePolicyViolation:    "structure violates validation policy",
	ErrCodeDuplicateInBatch:   "duplicate structure within batch",
	ErrCodeBatchTooLarge:      "batch exceeds configured row ceiling",
	ErrCodeMoleculeNotFound:   "molecule not found",
	ErrCodeUnsupportedFormat:  "unsupported structure format",

	ErrCodeExternalCallFailure:     "prediction engine call failed",
	ErrCodeExternalCallExhausted:   "prediction retries exhausted",
	ErrCodePredictionJobNotFound:   "prediction job not found",
	ErrCodeMalformedEngineResponse: "malformed prediction engine response",

	ErrCodeInvalidTransition:  "illegal submission status transition",
	ErrCodeInvalidState:       "operation not allowed in current submission status",
	ErrCodeUnknownMolecule:    "molecule not part of submission snapshot",
	ErrCodeSubmissionNotFound: "submission not found",
	ErrCodeRoleNotPermitted:   "acting role not permitted for this transition",
	ErrCodeEmptySubmission:    "submission requires at least one molecule",
	ErrCodeResultSetNotFound:  "result set not found",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
