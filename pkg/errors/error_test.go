package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "ucode/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{SubmissionNotFound, "Submission not found"},
		{InvalidParams, "Invalid parameters"},
		{DatabaseError, "Database operation failed"},
		{PollTimeout, "Still processing, check back later"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{CodeTooLarge, 400},
		{LanguageConfigInvalid, 400},
		{Unauthorized, 401},
		{Forbidden, 403},
		{NotEnrolled, 403},
		{NotFound, 404},
		{SubmissionNotFound, 404},
		{LanguageNotFound, 404},
		{GradingRecordNotFound, 404},
		{SubmissionImmutable, 409},
		{TooManyRequests, 429},
		{SubmitTooFrequently, 429},
		{InternalServerError, 500},
		{GradingRecordFailed, 500},
		{JudgeQueueFull, 503},
		{PollTimeout, 504},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(SubmissionNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Code != SubmissionNotFound {
		t.Errorf("Code = %v, want %v", err.Code, SubmissionNotFound)
	}

	if err.Error() != SubmissionNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), SubmissionNotFound.Message())
	}
	if err.Stack == "" {
		t.Error("expected a captured stack")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(LanguageNotFound, "language %q not found", "cobol")

	want := `language "cobol" not found`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}

	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("errors.Is should see the original error")
	}

	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("broker down")
	err := Wrapf(originalErr, SubmissionCreateFailed, "dispatch submission %s failed", "s-1")

	if err.Error() != "dispatch submission s-1 failed" {
		t.Errorf("Error() = %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("Wrapf should keep the cause")
	}
	if Wrapf(nil, SubmissionCreateFailed, "x") != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "source_code").
		WithDetail("reason", "must not be blank")

	if err.Details["field"] != "source_code" {
		t.Error("Field detail not set correctly")
	}

	if err.Details["reason"] != "must not be blank" {
		t.Error("Reason detail not set correctly")
	}

	err = err.WithDetails(map[string]any{"limit": 1024})
	if err.Details["limit"] != 1024 || err.Details["field"] != "source_code" {
		t.Errorf("WithDetails merged incorrectly: %v", err.Details)
	}
}

func TestError_WithMessage(t *testing.T) {
	customMsg := "custom error message"
	err := New(InternalServerError).WithMessage(customMsg)

	if err.Error() != customMsg {
		t.Errorf("Error() = %v, want %v", err.Error(), customMsg)
	}

	err = New(CodeTooLarge).WithMessagef("source exceeds %d bytes", 1024)
	if err.Error() != "source exceeds 1024 bytes" {
		t.Errorf("Error() = %v", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(SubmissionNotFound),
			want: SubmissionNotFound,
		},
		{
			name: "wrapped custom error",
			err:  fmt.Errorf("outer: %w", New(NotEnrolled)),
			want: NotEnrolled,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Error("GetError(nil) should be nil")
	}
	plain := errors.New("boom")
	if got := GetError(plain); got.Code != InternalServerError || got.Unwrap() != plain {
		t.Errorf("unexpected wrap of plain error: %+v", got)
	}
	custom := New(RunFailed)
	if GetError(custom) != custom {
		t.Error("GetError should return the custom error itself")
	}
}

func TestIs(t *testing.T) {
	err := New(SubmissionNotFound)

	if !Is(err, SubmissionNotFound) {
		t.Error("Is() should return true for matching code")
	}

	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}

	if Is(nil, SubmissionNotFound) {
		t.Error("Is() should return false for nil error")
	}

	if Is(errors.New("plain"), InternalServerError) {
		t.Error("Is() should return false for plain errors")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		err := BadRequest("invalid input")
		if err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("submission")
		if err.Code != NotFound || err.Error() != "submission not found" {
			t.Errorf("unexpected error %v (%v)", err, err.Code)
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		originalErr := errors.New("db error")
		err := InternalError(originalErr)
		if err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
		if InternalError(nil).Code != InternalServerError {
			t.Error("InternalError(nil) should still carry a code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("problem_id", "must be positive")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "problem_id" {
			t.Error("Field detail not set")
		}
	})
}
