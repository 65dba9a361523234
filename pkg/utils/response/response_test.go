package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appErr "ucode/pkg/errors"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", func(c *gin.Context) {
		c.Set("trace_id", "t-1")
		handler(c)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestErrorMapsCodeToStatus(t *testing.T) {
	rec, body := serve(t, func(c *gin.Context) {
		Error(c, appErr.ValidationError("page_size", "must be between 1 and 100"))
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["code"] != float64(appErr.ValidationFailed) || body["trace_id"] != "t-1" {
		t.Fatalf("unexpected body %v", body)
	}
	details, ok := body["details"].(map[string]any)
	if !ok || details["field"] != "page_size" {
		t.Fatalf("expected details, got %v", body["details"])
	}
}

func TestErrorWrapsPlainErrors(t *testing.T) {
	rec, body := serve(t, func(c *gin.Context) {
		Error(c, errors.New("boom"))
	})
	if rec.Code != http.StatusInternalServerError || body["code"] != float64(appErr.InternalServerError) {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("empty details must be omitted: %v", body)
	}
}

func TestSuccessWithPagination(t *testing.T) {
	rec, body := serve(t, func(c *gin.Context) {
		SuccessWithPagination(c, []string{"a", "b"}, 5, 1, 2)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["total_pages"] != float64(3) || data["total"] != float64(5) {
		t.Fatalf("unexpected page data %v", data)
	}
}

func TestCreated(t *testing.T) {
	rec, body := serve(t, func(c *gin.Context) {
		Created(c, map[string]string{"submission_id": "s-1"})
	})
	if rec.Code != http.StatusCreated || body["message"] != "Created" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
}
