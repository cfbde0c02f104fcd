package e2e

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func validProcessStartBody() string {
	return `{
		"url": "https://www.youtube.com/playlist?list=PLtest123",
		"quickPlay": false,
		"clipDuration": 10,
		"questionCount": 5
	}`
}

func TestProcessStart_Success(t *testing.T) {
	ta := setupApp(t)
	requireRedis(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", validProcessStartBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "queued" {
		t.Errorf("expected status 'queued', got %v", result["status"])
	}
}

func TestProcessStart_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/process/start", validProcessStartBody(), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestProcessStart_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	// Not a URL
	body := `{"url": "not-a-url"}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestProcessStart_ClipDurationOutOfRange(t *testing.T) {
	ta := setupApp(t)

	body := `{"url": "https://www.youtube.com/playlist?list=PLtest123", "clipDuration": 1}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestProcessStatus_Success(t *testing.T) {
	ta := setupApp(t)
	requireRedis(t, ta)

	// First, start a job to get a jobId
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", validProcessStartBody())
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	startResult := parseJSON(t, resp)
	jobID := startResult["jobId"].(string)

	// Now check status
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/process/status/"+jobID, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	statusResult := parseJSON(t, resp)
	if statusResult["jobId"] != jobID {
		t.Errorf("expected jobId %s, got %v", jobID, statusResult["jobId"])
	}
	if statusResult["status"] == nil {
		t.Error("expected 'status' field in response")
	}
}

func TestProcessStatus_NotFound(t *testing.T) {
	ta := setupApp(t)
	requireRedis(t, ta)

	fakeJobID := uuid.New().String()
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/process/status/"+fakeJobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestProcessCancel_Success(t *testing.T) {
	ta := setupApp(t)
	requireRedis(t, ta)

	// Start a job
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", validProcessStartBody())
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	startResult := parseJSON(t, resp)
	jobID := startResult["jobId"].(string)

	// Cancel it
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/process/cancel/"+jobID, "")
	if err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	cancelResult := parseJSON(t, resp)
	if cancelResult["success"] != true {
		t.Errorf("expected success true, got %v", cancelResult["success"])
	}
	if cancelResult["status"] != "canceled" {
		t.Errorf("expected status 'canceled', got %v", cancelResult["status"])
	}
}

func TestProcessResult_NotCompleted(t *testing.T) {
	ta := setupApp(t)
	requireRedis(t, ta)

	// A freshly queued job has no result yet
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", validProcessStartBody())
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	startResult := parseJSON(t, resp)
	jobID := startResult["jobId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/process/result/"+jobID, "")
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}
