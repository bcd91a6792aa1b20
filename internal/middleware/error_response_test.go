package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/jobbridge/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewJobNotFoundError("job-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeJobNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeJobNotFound)
	}
	if body.Category != model.CategoryNotFound {
		t.Errorf("category = %q, want %q", body.Category, model.CategoryNotFound)
	}
	if body.Message == "" || body.Action == "" {
		t.Errorf("message and action should be set: %+v", body)
	}
}

func TestWriteErrorResponse_MiddlewareErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        *model.APIError
		wantCode   string
		wantCat    string
	}{
		{"unauthorized", http.StatusUnauthorized, model.NewUnauthorizedError(), "UNAUTHORIZED", "auth"},
		{"suspended", http.StatusForbidden, model.NewAccountSuspendedError(), "ACCOUNT_SUSPENDED", "forbidden"},
		{"csrf", http.StatusForbidden, model.NewCSRFTokenInvalidError(), "CSRF_TOKEN_INVALID", "forbidden"},
		{"rate_limit", http.StatusTooManyRequests, model.NewRateLimitExceededError(), "RATE_LIMIT_EXCEEDED", "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.err)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			body := decodeErrorBody(t, w)
			if body.Code != tt.wantCode || body.Category != tt.wantCat {
				t.Errorf("body = %+v, want code %s category %s", body, tt.wantCode, tt.wantCat)
			}
		})
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("title", "必須です"))

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
