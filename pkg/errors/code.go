package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Submission errors
// 13100-13199: Judge result errors
// 13200-13299: Run (scratch) errors
// 13300-13399: Language configuration errors
// 13400-13499: Assignment grading errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	ProblemNotSubmittable  ErrorCode = 13005
	SubmissionImmutable    ErrorCode = 13006
	SubmissionDeleteFailed ErrorCode = 13007

	// Judge result (13100-13199)
	JudgeQueueFull       ErrorCode = 13100
	JudgeSystemError     ErrorCode = 13101
	CompareResultInvalid ErrorCode = 13102
	InvalidTransition    ErrorCode = 13103
	PollTimeout          ErrorCode = 13104

	// Run (13200-13299)
	RunFailed ErrorCode = 13200

	// Language configuration (13300-13399)
	LanguageNotFound      ErrorCode = 13300
	LanguageConfigInvalid ErrorCode = 13301
	LanguageSaveFailed    ErrorCode = 13302

	// Assignment grading (13400-13499)
	AssignmentProblemNotFound ErrorCode = 13400
	NotEnrolled               ErrorCode = 13401
	GradingRecordFailed       ErrorCode = 13402
	GradingRecordNotFound     ErrorCode = 13403
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	ProblemNotSubmittable:  "This problem cannot be submitted at the moment",
	SubmissionImmutable:    "Submission is already final",
	SubmissionDeleteFailed: "Failed to delete submission",

	// Judge result
	JudgeQueueFull:       "Judge queue is full, please try again later",
	JudgeSystemError:     "Judge system error",
	CompareResultInvalid: "Compare result does not match test case count",
	InvalidTransition:    "Invalid submission status transition",
	PollTimeout:          "Still processing, check back later",

	// Run
	RunFailed: "Failed to start run",

	// Language configuration
	LanguageNotFound:      "Language not found",
	LanguageConfigInvalid: "Invalid language configuration",
	LanguageSaveFailed:    "Failed to save language configuration",

	// Assignment grading
	AssignmentProblemNotFound: "Problem is not part of this assignment",
	NotEnrolled:               "User is not enrolled in this assignment",
	GradingRecordFailed:       "Failed to record graded attempt",
	GradingRecordNotFound:     "Grading record not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == Forbidden, c == NotEnrolled:
		return 403
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == LanguageNotFound,
		c == AssignmentProblemNotFound, c == GradingRecordNotFound:
		return 404
	case c == SubmissionImmutable, c == InvalidTransition, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c == Timeout, c == PollTimeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported, c == CompareResultInvalid,
		c == LanguageConfigInvalid, c == ProblemNotSubmittable:
		return 400
	default:
		return 500
	}
}
