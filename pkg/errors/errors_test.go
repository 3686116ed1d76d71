package errors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewInvalidInputError("malformed offer")
	want := "INVALID_INPUT: malformed offer"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("ffmpeg exited")
	wrapped := WrapError(cause, ErrCodeBadGateway, "capture failed", http.StatusBadGateway)
	if !strings.Contains(wrapped.Error(), "ffmpeg exited") {
		t.Errorf("Error() should include the cause, got %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should reach the wrapped cause through Unwrap")
	}
}

func TestAppErrorContext(t *testing.T) {
	err := NewNotFoundError("camera").
		WithContext("camera_id", "front-door").
		WithContext("viewers", 3)

	if err.Context["camera_id"] != "front-door" {
		t.Errorf("Context[camera_id] = %v, want front-door", err.Context["camera_id"])
	}
	if err.Context["viewers"] != 3 {
		t.Errorf("Context[viewers] = %v, want 3", err.Context["viewers"])
	}
}

func TestConstructorStatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad sdp"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("camera"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorizedError("missing token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewInternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
		{NewBadGatewayError("stream source unreachable"), ErrCodeBadGateway, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
		}
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("HTTPStatus for %v = %d, want %d", tc.code, tc.err.HTTPStatus, tc.status)
		}
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NewNotFoundError("camera")
	if err.Message != "camera not found" {
		t.Errorf("Message = %q, want %q", err.Message, "camera not found")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewBadGatewayError("capture failed")
	if got := GetAppError(appErr); got != appErr {
		t.Errorf("GetAppError() = %v, want the error itself", got)
	}

	// AppError buried inside a plain wrap is still found.
	buried := WrapError(appErr, ErrCodeInternal, "handler failed", http.StatusInternalServerError)
	if got := GetAppError(buried); got != buried {
		t.Errorf("GetAppError() = %v, want outermost AppError", got)
	}

	if got := GetAppError(errors.New("plain")); got != nil {
		t.Errorf("GetAppError() = %v, want nil for non-AppError", got)
	}
	if got := GetAppError(nil); got != nil {
		t.Errorf("GetAppError(nil) = %v, want nil", got)
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NewInternalError("x")) {
		t.Error("IsAppError should be true for AppError")
	}
	if IsAppError(errors.New("x")) {
		t.Error("IsAppError should be false for a plain error")
	}
}
