package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bureau"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/graphstore"
	"github.com/opensource-finance/kestrel/internal/pii"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/signals"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

const deceasedSSN = "219-09-9999"

// Applicants riding on the same primary holder's card in the test bureau.
var auRiders = []string{"301-44-5566", "302-44-5566"}

func testBureau() *bureau.StaticConnector {
	var files []domain.CreditFile
	for _, ssn := range auRiders {
		files = append(files, domain.CreditFile{
			SSNHash: pii.Hash(pii.NormalizeSSN(ssn)),
			Tradelines: []domain.Tradeline{
				{AccountID: "card-" + ssn, IsAuthorizedUser: true, PrimaryHolder: "holder-7"},
			},
		})
	}
	return bureau.NewStatic(files)
}

// createTestServer wires a full in-process stack on a temporary SQLite file.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.DefaultRules()); err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	store := graphstore.NewMemoryStore()
	extractor := graph.NewExtractor(store, 0)
	detector := ensemble.NewDetector(domain.DefaultScoringConfig(), ensemble.Dependencies{
		Graph:     store,
		Extractor: extractor,
		Rules:     engine,
	})
	pipeline := ensemble.NewPipeline(detector, repo, eventBus)
	clusters := graph.NewClusterService(
		graph.NewClusterDetector(store, domain.DefaultClusterConfig()),
		store, repo, eventBus, extractor,
	)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, Dependencies{
		Repo:         repo,
		Bus:          eventBus,
		Graph:        store,
		Pipeline:     pipeline,
		Engine:       engine,
		Clusters:     clusters,
		Extractor:    extractor,
		Velocity:     velocity.NewAnalyzer(velocity.NewMemoryStore(), domain.VelocityConfig{}),
		AU:           signals.NewAUDetector(testBureau(), store),
		SSNValidator: signals.NewSSNValidator([]string{pii.Hash(pii.NormalizeSSN(deceasedSSN))}),
	}, "test-v1")
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func applicant(ssn, name string) ApplicationRequest {
	return ApplicationRequest{
		SSN:               ssn,
		Name:              name,
		Address:           "12 Harbour Lane, Portland OR",
		Phone:             "(503) 555-0100",
		Email:             name + "@example.com",
		DeviceFingerprint: "device-" + name,
		DateOfBirth:       "1988-04-12",
	}
}

func TestScoreEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/score", applicant("123-45-6789", "Jane Doe"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var res domain.EnsembleResult
		decode(t, rr, &res)

		if res.ID == "" {
			t.Error("expected score ID")
		}
		if res.TenantID != "tenant-001" {
			t.Errorf("expected tenant-001, got %s", res.TenantID)
		}
		if want := pii.IdentityID("123-45-6789", "Jane Doe"); res.IdentityID != want {
			t.Errorf("expected identity %s, got %s", want, res.IdentityID)
		}
		if res.FinalScore < 0 || res.FinalScore > 1 {
			t.Errorf("final score out of range: %f", res.FinalScore)
		}
		if res.RecommendedAction == "" {
			t.Error("expected recommended action")
		}

		got := do(t, server, http.MethodGet, "/scores/"+res.ID, nil)
		if got.Code != http.StatusOK {
			t.Fatalf("expected stored score, got %d: %s", got.Code, got.Body.String())
		}
		var stored domain.EnsembleResult
		decode(t, got, &stored)
		if stored.RiskLevel != res.RiskLevel {
			t.Errorf("stored level %s differs from %s", stored.RiskLevel, res.RiskLevel)
		}
	})

	t.Run("RawPIINotEchoed", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/score", applicant("123-45-6780", "John Roe"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if bytes.Contains(rr.Body.Bytes(), []byte("123-45-6780")) {
			t.Error("raw SSN leaked into the response")
		}
	})

	t.Run("ProvidedSSNSignalsWin", func(t *testing.T) {
		app := applicant(deceasedSSN, "Ghost Twin")
		app.SSNSignals = &domain.SSNSignals{}
		rr := do(t, server, http.MethodPost, "/score", app)
		var res domain.EnsembleResult
		decode(t, rr, &res)
		if res.RiskLevel == domain.RiskCritical {
			t.Error("explicit SSN signals should replace derived ones")
		}
	})

	t.Run("DeathMasterIsCritical", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/score", applicant(deceasedSSN, "Ghost Person"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var res domain.EnsembleResult
		decode(t, rr, &res)
		if res.RiskLevel != domain.RiskCritical {
			t.Errorf("expected critical, got %s", res.RiskLevel)
		}
	})

	t.Run("MissingSSN", func(t *testing.T) {
		app := applicant("", "No SSN")
		rr := do(t, server, http.MethodPost, "/score", app)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("BadDateOfBirth", func(t *testing.T) {
		app := applicant("123-45-6789", "Jane Doe")
		app.DateOfBirth = "12/04/1988"
		rr := do(t, server, http.MethodPost, "/score", app)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("FutureDateOfBirth", func(t *testing.T) {
		app := applicant("123-45-6789", "Jane Doe")
		app.DateOfBirth = "2999-01-01"
		rr := do(t, server, http.MethodPost, "/score", app)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/score", "{invalid json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		body, _ := json.Marshal(applicant("123-45-6789", "Jane Doe"))
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("X-Tenant-ID", "tenant.001")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownScore", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/scores/does-not-exist", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestScoreBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("MixedBatch", func(t *testing.T) {
		bad := applicant("123-45-6789", "Bad Date")
		bad.DateOfBirth = "yesterday"

		rr := do(t, server, http.MethodPost, "/score/batch", BatchRequest{Applications: []ApplicationRequest{
			applicant("111-22-3333", "Ann One"),
			bad,
			applicant("111-22-4444", "Bob Two"),
		}})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Results []struct {
				Result *domain.EnsembleResult `json:"result"`
				Error  string                 `json:"error"`
			} `json:"results"`
			Count  int `json:"count"`
			Failed int `json:"failed"`
		}
		decode(t, rr, &resp)

		if resp.Count != 3 || resp.Failed != 1 {
			t.Fatalf("expected 3 results with 1 failure, got %d/%d", resp.Count, resp.Failed)
		}
		if resp.Results[1].Error == "" || resp.Results[1].Result != nil {
			t.Errorf("expected the second application to fail, got %+v", resp.Results[1])
		}
		if want := pii.IdentityID("111-22-4444", "Bob Two"); resp.Results[2].Result == nil || resp.Results[2].Result.IdentityID != want {
			t.Errorf("results out of order: %+v", resp.Results[2])
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/score/batch", BatchRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("OversizedBatch", func(t *testing.T) {
		apps := make([]ApplicationRequest, MaxBatchSize+1)
		rr := do(t, server, http.MethodPost, "/score/batch", BatchRequest{Applications: apps})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestIdentityGraphEndpoints(t *testing.T) {
	server := createTestServer(t)

	first := pii.IdentityID("555-66-7777", "Ring Leader")
	for _, name := range []string{"Ring Leader", "Ring Member"} {
		if rr := do(t, server, http.MethodPost, "/score", applicant("555-66-7777", name)); rr.Code != http.StatusOK {
			t.Fatalf("scoring %s failed: %d", name, rr.Code)
		}
	}

	t.Run("Features", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/"+first+"/features", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Features domain.GraphFeatures `json:"features"`
			Vector   []float64            `json:"vector"`
		}
		decode(t, rr, &resp)
		if len(resp.Vector) != 15 {
			t.Errorf("expected 15 features, got %d", len(resp.Vector))
		}
		if resp.Features.SharedSSNCount != 1 {
			t.Errorf("expected one identity sharing the SSN, got %d", resp.Features.SharedSSNCount)
		}
	})

	t.Run("FeaturesUnknownIdentity", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/nobody/features", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 with empty features, got %d", rr.Code)
		}
	})

	t.Run("Subgraph", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/"+first+"/subgraph?depth=9", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var sub domain.Subgraph
		decode(t, rr, &sub)
		if len(sub.Nodes) == 0 {
			t.Error("expected nodes in subgraph")
		}
	})

	t.Run("SubgraphBadDepth", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/"+first+"/subgraph?depth=abc", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SubgraphUnknownIdentity", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/nobody/subgraph", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Shared", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/identities/"+first+"/shared", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Shared map[string][]string `json:"shared"`
		}
		decode(t, rr, &resp)
		want := pii.IdentityID("555-66-7777", "Ring Member")
		if got := resp.Shared[string(domain.ElementSSN)]; len(got) != 1 || got[0] != want {
			t.Errorf("expected SSN shared with %s, got %v", want, got)
		}
	})
}

func TestElementHistoryEndpoint(t *testing.T) {
	server := createTestServer(t)
	analyzer := server.handler.deps.Velocity

	phoneHash := pii.Hash(pii.NormalizePhone("(503) 555-0100"))
	for _, id := range []string{"id-1", "id-2"} {
		err := analyzer.RecordIdentityElements(t.Context(), "tenant-001",
			&domain.Identity{ID: id, SSNHash: "ssn-" + id, PhoneHash: phoneHash}, time.Now())
		if err != nil {
			t.Fatalf("failed to record %s: %v", id, err)
		}
	}

	t.Run("RawValueIsNormalized", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/elements/history", ElementHistoryRequest{
			Type:  domain.ElementPhone,
			Value: "503.555.0100",
			Days:  30,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var h domain.ElementHistory
		decode(t, rr, &h)
		if len(h.Identities) != 2 || len(h.SSNs) != 2 {
			t.Errorf("expected 2 identities and 2 SSNs, got %d and %d", len(h.Identities), len(h.SSNs))
		}
	})

	t.Run("OtherTenantSeesNothing", func(t *testing.T) {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(ElementHistoryRequest{Type: domain.ElementPhone, Hash: phoneHash})
		req := httptest.NewRequest(http.MethodPost, "/elements/history", &buf)
		req.Header.Set("X-Tenant-ID", "tenant-002")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		var h domain.ElementHistory
		decode(t, rr, &h)
		if len(h.Identities) != 0 {
			t.Errorf("expected no identities for another tenant, got %d", len(h.Identities))
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/elements/history", ElementHistoryRequest{Type: "ssn", Value: "555-66-7777"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeDays", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/elements/history", ElementHistoryRequest{Type: domain.ElementPhone, Hash: phoneHash, Days: -1})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAURingsEndpoint(t *testing.T) {
	server := createTestServer(t)

	var ids []string
	for i, ssn := range append(auRiders, "303-44-5566") {
		if rr := do(t, server, http.MethodPost, "/score", applicant(ssn, fmt.Sprintf("Rider %d", i))); rr.Code != http.StatusOK {
			t.Fatalf("scoring %s failed: %d", ssn, rr.Code)
		}
		ids = append(ids, pii.IdentityID(ssn, fmt.Sprintf("Rider %d", i)))
	}

	t.Run("GroupsByPrimaryHolder", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/au/rings", AURingsRequest{IdentityIDs: append(ids, "nobody")})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Rings   []signals.AURing `json:"rings"`
			Missing []string         `json:"missing"`
		}
		decode(t, rr, &resp)
		if len(resp.Rings) != 1 || resp.Rings[0].PrimaryHolder != "holder-7" {
			t.Fatalf("expected one ring on holder-7, got %+v", resp.Rings)
		}
		if len(resp.Rings[0].Identities) != 2 {
			t.Errorf("expected 2 ring members, got %v", resp.Rings[0].Identities)
		}
		if len(resp.Missing) != 1 || resp.Missing[0] != "nobody" {
			t.Errorf("expected nobody reported missing, got %v", resp.Missing)
		}
	})

	t.Run("NeedsTwoIdentities", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/au/rings", AURingsRequest{IdentityIDs: ids[:1]})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestBustOutEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("Predict", func(t *testing.T) {
		score := 0.8
		rr := do(t, server, http.MethodPost, "/bustout/predict", BustOutRequest{
			AccountID: "acct-1",
			CreditSequence: &domain.CreditSequence{
				Balances:      []float64{500, 900, 1800, 4200, 9000, 9800},
				Payments:      []float64{500, 400, 300, 100, 0, 0},
				Utilization:   []float64{0.05, 0.09, 0.18, 0.42, 0.9, 0.98},
				CashAdvances:  []float64{0, 0, 0, 500, 1500, 2500},
				LimitChanges:  []float64{0, 2000, 3000, 0, 0, 0},
				MonthsOnBooks: 14,
			},
			SyntheticScore: &score,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var pred domain.BustOutPrediction
		decode(t, rr, &pred)
		if pred.AccountID != "acct-1" {
			t.Errorf("expected acct-1, got %s", pred.AccountID)
		}
		if pred.Probability < 0 || pred.Probability > 1 {
			t.Errorf("probability out of range: %f", pred.Probability)
		}
	})

	t.Run("MissingSequence", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/bustout/predict", BustOutRequest{AccountID: "acct-1"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SyntheticScoreOutOfRange", func(t *testing.T) {
		score := 1.5
		rr := do(t, server, http.MethodPost, "/bustout/predict", BustOutRequest{
			AccountID:      "acct-1",
			CreditSequence: &domain.CreditSequence{Balances: []float64{100}},
			SyntheticScore: &score,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestClusterEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("NoRunYet", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/clusters", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	for i := range 4 {
		name := fmt.Sprintf("Member %d", i)
		if rr := do(t, server, http.MethodPost, "/score", applicant("444-55-6666", name)); rr.Code != http.StatusOK {
			t.Fatalf("scoring %s failed: %d", name, rr.Code)
		}
	}

	t.Run("UnknownAlgorithm", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/clusters/run", ClusterRunRequest{Algorithm: "kmeans"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	var run domain.ClusterRun
	t.Run("Run", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/clusters/run", ClusterRunRequest{Algorithm: graph.AlgorithmLouvain})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		decode(t, rr, &run)
		if run.Version != 1 {
			t.Errorf("expected version 1, got %d", run.Version)
		}
		if len(run.Clusters) != 1 {
			t.Fatalf("expected 1 cluster, got %d", len(run.Clusters))
		}
	})

	t.Run("Latest", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/clusters", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var latest domain.ClusterRun
		decode(t, rr, &latest)
		if latest.ID != run.ID {
			t.Errorf("expected run %s, got %s", run.ID, latest.ID)
		}
	})

	t.Run("GetClusterAndMembers", func(t *testing.T) {
		if len(run.Clusters) == 0 {
			t.Skip("no cluster detected")
		}
		id := run.Clusters[0].ClusterID

		rr := do(t, server, http.MethodGet, "/clusters/"+id, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr = do(t, server, http.MethodGet, "/clusters/"+id+"/members", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count != 4 {
			t.Errorf("expected 4 members, got %d", resp.Count)
		}
	})

	t.Run("UnknownCluster", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/clusters/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)
	defaults := len(rules.DefaultRules())

	t.Run("ListRules", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count != defaults {
			t.Errorf("expected %d rules, got %d", defaults, resp.Count)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/rules/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "broken",
			Name:       "Broken",
			Expression: "no_such_variable > 1",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		one := 1.0
		rr := do(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "many-applications",
			Name:       "Many Applications",
			Expression: "app_count_30d > 10 ? 1.0 : 0.0",
			Bands: []domain.RuleBand{
				{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeFail, Reason: "Application flood"},
			},
			Enabled: true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = do(t, server, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = do(t, server, http.MethodGet, "/rules/many-applications", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected reloaded rule, got %d", rr.Code)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	server := createTestServer(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rr := httptest.NewRecorder()
			server.Router().ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}
		})
	}

	t.Run("HealthBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		var resp map[string]string
		decode(t, rr, &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected test-v1, got %s", resp["version"])
		}
	})

	t.Run("TraceHeaders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("expected request ID echoed, got %q", got)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace ID header")
		}
	})
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"tenant-001", true},
		{"ACME_bank", true},
		{"tenant.001", false},
		{"tenant 001", false},
		{string(bytes.Repeat([]byte("a"), 65)), false},
	}
	for _, tt := range tests {
		if got := validTenantID(tt.id); got != tt.want {
			t.Errorf("validTenantID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
