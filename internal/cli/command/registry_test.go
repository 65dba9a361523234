package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRequestSubmit(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(file, []byte("int main() {}"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	cmd := Registry()["submission submit"]
	params := Params{}
	params.Set("p", "42")
	params.Set("lang", "cpp")
	params.Set("file", file)
	params.Set("source_code", "_file_")
	params.Set("assignment", "3")
	params.Set("idempotency_key", "k1")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/submissions" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if req.Headers["Idempotency-Key"] != "k1" {
		t.Fatalf("idempotency header missing: %v", req.Headers)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["source_code"] != "int main() {}" || body["problem_id"] != float64(42) || body["assignment_id"] != float64(3) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBuildRequestRunRequiresSource(t *testing.T) {
	params := Params{}
	params.Set("problem_id", "42")
	params.Set("language_code", "cpp")
	if _, err := BuildRequest(Registry()["submission run"], params); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestBuildRequestListQuery(t *testing.T) {
	params := Params{}
	params.Set("user", "7")
	params.Set("kind", "run")
	params.Set("page", "2")

	req, err := BuildRequest(Registry()["submission list"], params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.Path != "/api/v1/submissions?kind=run&page=2&user_id=7" {
		t.Fatalf("unexpected path %s", req.Path)
	}
	if req.Body != nil {
		t.Fatalf("GET must not carry a body")
	}

	params.Set("page", "two")
	if _, err := BuildRequest(Registry()["submission list"], params); err == nil {
		t.Fatal("expected error for non-numeric page")
	}
}

func TestBuildRequestOverrideOnlySendsGivenFields(t *testing.T) {
	params := Params{}
	params.Set("problem", "42")
	params.Set("code", "py")
	params.Set("factor", "2.5")
	params.Set("head", "import sys")

	req, err := BuildRequest(Registry()["language override"], params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.Method != "PUT" || req.Path != "/api/v1/problems/42/languages/py" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	body := string(req.Body)
	if strings.Contains(body, "memory_kb") || strings.Contains(body, `"tail"`) {
		t.Fatalf("override body carries unset fields: %s", body)
	}
	if !strings.Contains(body, `"time_factor":2.5`) || !strings.Contains(body, `"head":"import sys"`) {
		t.Fatalf("override body misses fields: %s", body)
	}
}

func TestBuildRequestMissingPathParam(t *testing.T) {
	if _, err := BuildRequest(Registry()["submission get"], Params{}); err == nil {
		t.Fatal("expected missing id error")
	}
	if _, err := BuildRequest(Registry()["submission watch"], Params{}); err == nil {
		t.Fatal("local commands must not build requests")
	}
}
