//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Kestrel
// server.
//
// Run with: KESTREL_TEST_URL=http://localhost:8080 go test -tags=integration -v ./tests/integration/...
//
// Every test uses its own tenant, so identities and cluster runs from earlier
// runs never leak into the assertions.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}
}

// Application is the body of POST /score.
type Application struct {
	SSN               string `json:"ssn"`
	Name              string `json:"name"`
	Address           string `json:"address,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Email             string `json:"email,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	DateOfBirth       string `json:"dateOfBirth"`
}

// ScoreResponse is what POST /score returns.
type ScoreResponse struct {
	ID                string   `json:"id"`
	IdentityID        string   `json:"identityId"`
	FinalScore        float64  `json:"finalRiskScore"`
	RiskLevel         string   `json:"riskLevel"`
	Signals           []string `json:"primarySignals"`
	RecommendedAction string   `json:"recommendedAction"`
}

// BustOutResponse is what POST /bustout/predict returns.
type BustOutResponse struct {
	AccountID      string   `json:"accountId"`
	Probability    float64  `json:"bustOutProbability"`
	RiskLevel      string   `json:"riskLevel"`
	WarningSignals []string `json:"warningSignals"`
}

// ClusterRunResponse is what POST /clusters/run returns.
type ClusterRunResponse struct {
	ID       string `json:"id"`
	Version  int64  `json:"version"`
	Clusters []struct {
		ClusterID    string   `json:"clusterId"`
		Members      []string `json:"identities"`
		ClusterScore float64  `json:"clusterScore"`
	} `json:"clusters"`
}

func call(t *testing.T, config TestConfig, method, path string, body any, want int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
}

func score(t *testing.T, config TestConfig, app Application) ScoreResponse {
	t.Helper()
	var res ScoreResponse
	call(t, config, http.MethodPost, "/score", app, http.StatusOK, &res)
	return res
}

func TestGenuineApplicant(t *testing.T) {
	config := getTestConfig(t)

	res := score(t, config, Application{
		SSN:               "123-45-6789",
		Name:              "Maria Lopez",
		Address:           "400 Elm Street, Springfield IL",
		Phone:             "217-555-0142",
		Email:             "maria.lopez@example.com",
		DeviceFingerprint: "fp-maria-laptop",
		DateOfBirth:       "1979-03-02",
	})

	if res.FinalScore < 0 || res.FinalScore > 1 {
		t.Errorf("Expected score in [0,1], got %.4f", res.FinalScore)
	}
	if res.RiskLevel == "critical" {
		t.Errorf("Expected a first-seen clean applicant below critical, got %s (%v)", res.RiskLevel, res.Signals)
	}
	if slices.Contains(res.Signals, "SHARED_SSN") {
		t.Error("Unexpected SHARED_SSN on a first-seen SSN")
	}

	var stored ScoreResponse
	call(t, config, http.MethodGet, "/scores/"+res.ID, nil, http.StatusOK, &stored)
	if stored.FinalScore != res.FinalScore {
		t.Errorf("Stored score %.4f differs from %.4f", stored.FinalScore, res.FinalScore)
	}
}

func TestSharedSSNIsCritical(t *testing.T) {
	config := getTestConfig(t)

	score(t, config, Application{SSN: "321-54-9876", Name: "First Holder", DateOfBirth: "1985-07-19"})
	res := score(t, config, Application{SSN: "321-54-9876", Name: "Second Holder", DateOfBirth: "1996-11-30"})

	if !slices.Contains(res.Signals, "SHARED_SSN") {
		t.Fatalf("Expected SHARED_SSN for a reused SSN, got %v", res.Signals)
	}
	if res.RiskLevel != "critical" {
		t.Errorf("Expected critical for SHARED_SSN, got %s", res.RiskLevel)
	}
}

func TestDeterministicScoring(t *testing.T) {
	config := getTestConfig(t)

	app := Application{SSN: "234-56-7890", Name: "Repeat Applicant", DateOfBirth: "1990-01-01"}
	first := score(t, config, app)
	second := score(t, config, app)

	if first.IdentityID != second.IdentityID {
		t.Errorf("Expected a stable identity ID, got %s and %s", first.IdentityID, second.IdentityID)
	}
	if first.RiskLevel != second.RiskLevel {
		t.Errorf("Expected the same level, got %s and %s", first.RiskLevel, second.RiskLevel)
	}
}

func TestBustOutPrediction(t *testing.T) {
	config := getTestConfig(t)

	balances := make([]float64, 12)
	payments := make([]float64, 12)
	utilization := make([]float64, 12)
	for i := range 12 {
		balances[i] = 1000 + float64(i)*500
		payments[i] = 500 - float64(i)*30
		utilization[i] = balances[i] / 7000
	}

	var pred BustOutResponse
	call(t, config, http.MethodPost, "/bustout/predict", map[string]any{
		"accountId": "acct-it-1",
		"creditSequence": map[string]any{
			"balances":      balances,
			"payments":      payments,
			"utilization":   utilization,
			"monthsOnBooks": 12,
		},
	}, http.StatusOK, &pred)

	if pred.Probability <= 0.5 {
		t.Errorf("Expected bust-out probability > 0.5, got %.4f", pred.Probability)
	}
	if !slices.Contains(pred.WarningSignals, "DECLINING_PAYMENTS") {
		t.Errorf("Expected DECLINING_PAYMENTS, got %v", pred.WarningSignals)
	}
}

func TestClusterDetection(t *testing.T) {
	config := getTestConfig(t)

	call(t, config, http.MethodGet, "/clusters", nil, http.StatusNotFound, nil)

	for i := range 6 {
		score(t, config, Application{
			SSN:         "345-67-8901",
			Name:        fmt.Sprintf("Ring Member %d", i),
			DateOfBirth: "1994-05-05",
		})
	}

	var run ClusterRunResponse
	call(t, config, http.MethodPost, "/clusters/run", map[string]any{"algorithm": "louvain"}, http.StatusOK, &run)

	if run.Version != 1 {
		t.Errorf("Expected first run version 1, got %d", run.Version)
	}
	if len(run.Clusters) != 1 {
		t.Fatalf("Expected one ring, got %d clusters", len(run.Clusters))
	}
	ring := run.Clusters[0]
	if len(ring.Members) != 6 {
		t.Errorf("Expected 6 members, got %d", len(ring.Members))
	}
	if ring.ClusterScore < 0.5 {
		t.Errorf("Expected cluster score >= 0.5 from SSN sharing, got %.4f", ring.ClusterScore)
	}

	call(t, config, http.MethodGet, "/clusters/"+ring.ClusterID, nil, http.StatusOK, nil)

	var again ClusterRunResponse
	call(t, config, http.MethodPost, "/clusters/run", map[string]any{"algorithm": "label_propagation"}, http.StatusOK, &again)
	if again.Version != 2 {
		t.Errorf("Expected second run version 2, got %d", again.Version)
	}
}

func TestRejectsMalformedApplication(t *testing.T) {
	config := getTestConfig(t)

	call(t, config, http.MethodPost, "/score", Application{SSN: "123-45-6789", Name: "No DOB"}, http.StatusBadRequest, nil)
}

func TestOperationalEndpoints(t *testing.T) {
	config := getTestConfig(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(config.BaseURL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
