package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
)

const testClaim = "The Danube flows through ten countries and is the longest river in the EU"

const decomposition = `{
	"original_claim": "` + testClaim + `",
	"claim_type": "factual",
	"language": "en",
	"sub_claims": [
		{"text": "The Danube flows through ten countries", "search_queries": ["danube countries"]},
		{"text": "The Danube is the longest river in the EU", "search_queries": ["danube longest river eu"]}
	]
}`

const supportEval = `{"relevance": 0.9, "credibility": 0.8, "stance": "supports", "rationale": "confirms the claim"}`

const summary = `{"summary": "Both statements check out.", "cited_fingerprints": []}`

// fakeOllama serves the local-model API, routing on the system prompt.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			System string `json:"system"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode generate request: %v", err)
		}

		var text string
		switch {
		case strings.Contains(req.System, "break a claim down"):
			text = decomposition
		case strings.Contains(req.System, "source analyst"):
			text = supportEval
		case strings.Contains(req.System, "fact-checking editor"):
			text = summary
		default:
			t.Errorf("unexpected system prompt: %.60s", req.System)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}))
	t.Cleanup(server.Close)
	return server
}

func fakeTavily(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": "",
			"results": []map[string]any{
				{"url": "https://rivers.example/danube", "title": "Danube", "content": "2850 km, ten countries", "score": 0.9},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testServer(t *testing.T, mutate func(*model.Config)) (*httptest.Server, *pipeline.Checker) {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.LLM = model.LLMConfig{Provider: "ollama", BaseURL: fakeOllama(t).URL, Model: "test", MaxAttempts: 2}
	cfg.Search.APIKey = "test-key"
	cfg.Search.BaseURL = fakeTavily(t).URL
	cfg.Search.BackoffBase = time.Millisecond
	cfg.Cache.Enabled = false
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}

	checker, err := pipeline.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	t.Cleanup(func() { _ = checker.Close() })

	srv := httptest.NewServer(New(checker, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler())
	t.Cleanup(srv.Close)
	return srv, checker
}

func submitClaim(t *testing.T, srv *httptest.Server, claim string) (runID, eventsPath string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"claim": claim})
	resp, err := http.Post(srv.URL+"/v1/checks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("submit status %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		RunID  string `json:"run_id"`
		Events string `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return out.RunID, out.Events
}

func drainEvents(t *testing.T, srv *httptest.Server, eventsPath string) string {
	t.Helper()
	resp, err := http.Get(srv.URL + eventsPath)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	return string(raw)
}

func TestServer_SubmitAndStream(t *testing.T) {
	srv, _ := testServer(t, nil)
	runID, eventsPath := submitClaim(t, srv, testClaim)

	stream := drainEvents(t, srv, eventsPath)
	for _, kind := range []string{"stage_started", "sub_claim_ready", "evidence_ready", "sub_verdict_ready", "done"} {
		if !strings.Contains(stream, "event:"+kind) && !strings.Contains(stream, "event: "+kind) {
			t.Errorf("stream missing %s event", kind)
		}
	}
	if strings.Contains(stream, "event:failed") || strings.Contains(stream, "event: failed") {
		t.Error("unexpected failed event")
	}

	// Run state is addressable after completion
	resp, err := http.Get(srv.URL + "/v1/checks/" + runID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	var run model.PipelineRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Stage != model.StageDone {
		t.Errorf("stage = %s", run.Stage)
	}
	if run.Verdict == nil || run.Verdict.Category != model.VerdictTrue {
		t.Errorf("verdict = %+v", run.Verdict)
	}
}

func TestServer_EventStreamSingleConsumer(t *testing.T) {
	srv, _ := testServer(t, nil)
	_, eventsPath := submitClaim(t, srv, testClaim)
	drainEvents(t, srv, eventsPath)

	resp, err := http.Get(srv.URL + eventsPath)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second consumer status = %d, want 409", resp.StatusCode)
	}
}

func TestServer_UnknownRun(t *testing.T) {
	srv, _ := testServer(t, nil)
	for _, path := range []string{"/v1/checks/nope", "/v1/checks/nope/events", "/v1/checks/nope/graph"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestServer_SubmitValidation(t *testing.T) {
	srv, _ := testServer(t, nil)

	// Missing claim field
	resp, err := http.Post(srv.URL+"/v1/checks", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}

	// Claim below the minimum length
	body, _ := json.Marshal(map[string]string{"claim": "short"})
	resp, err = http.Post(srv.URL+"/v1/checks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short claim status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_RateLimit(t *testing.T) {
	srv, _ := testServer(t, func(cfg *model.Config) {
		cfg.RateLimit.ChecksPerHour = 0.001
		cfg.RateLimit.Burst = 1
	})

	body, _ := json.Marshal(map[string]string{"claim": testClaim})
	first, err := http.Post(srv.URL+"/v1/checks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	second, err := http.Post(srv.URL+"/v1/checks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second post: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestServer_ReviewFlow(t *testing.T) {
	srv, _ := testServer(t, func(cfg *model.Config) {
		cfg.Review.Enabled = true
		cfg.Review.WaitTimeout = 10 * time.Second
	})
	runID, eventsPath := submitClaim(t, srv, testClaim)

	// Wait for the run to park at the review stage
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/v1/checks/" + runID)
		if err != nil {
			t.Fatalf("get state: %v", err)
		}
		var run model.PipelineRun
		_ = json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		if run.Stage == model.StageAwaitingReview {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never reached review stage, at %s", run.Stage)
		}
		time.Sleep(20 * time.Millisecond)
	}

	reviewBody := `{"overrides": [{"sub_claim_index": 0, "category": "false", "comment": "bad source"}], "finish": true}`
	resp, err := http.Post(srv.URL+"/v1/checks/"+runID+"/review", "application/json", strings.NewReader(reviewBody))
	if err != nil {
		t.Fatalf("post review: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review status = %d", resp.StatusCode)
	}

	stream := drainEvents(t, srv, eventsPath)
	if !strings.Contains(stream, "review_requested") {
		t.Error("stream missing review_requested event")
	}
	if !strings.Contains(stream, `"human_adjusted":true`) {
		t.Error("override not reflected in the final verdict")
	}

	// The window is closed now
	resp, err = http.Post(srv.URL+"/v1/checks/"+runID+"/review", "application/json", strings.NewReader(reviewBody))
	if err != nil {
		t.Fatalf("late review: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("late review status = %d, want 409", resp.StatusCode)
	}
}

func TestServer_ReviewRejectsUnknownCategory(t *testing.T) {
	srv, _ := testServer(t, func(cfg *model.Config) {
		cfg.Review.Enabled = true
		cfg.Review.WaitTimeout = 10 * time.Second
	})
	runID, eventsPath := submitClaim(t, srv, testClaim)
	defer drainEvents(t, srv, eventsPath)

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, _ := http.Get(srv.URL + "/v1/checks/" + runID)
		var run model.PipelineRun
		_ = json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		if run.Stage == model.StageAwaitingReview {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never reached review stage")
		}
		time.Sleep(20 * time.Millisecond)
	}

	body := `{"overrides": [{"sub_claim_index": 0, "category": "sort_of_true"}], "finish": true}`
	resp, err := http.Post(srv.URL+"/v1/checks/"+runID+"/review", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post review: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	// Unblock the run so cleanup does not wait out the window
	finish, err := http.Post(srv.URL+"/v1/checks/"+runID+"/review", "application/json", strings.NewReader(`{"finish": true}`))
	if err == nil {
		finish.Body.Close()
	}
}

func TestServer_Graph(t *testing.T) {
	srv, _ := testServer(t, nil)
	runID, eventsPath := submitClaim(t, srv, testClaim)
	drainEvents(t, srv, eventsPath)

	resp, err := http.Get(srv.URL + "/v1/checks/" + runID + "/graph")
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("graph status = %d", resp.StatusCode)
	}
	var g struct {
		RunID string           `json:"run_id"`
		Nodes []map[string]any `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if g.RunID != runID {
		t.Errorf("graph run id = %q", g.RunID)
	}
	// Claim + 2 sub-claims + at least one evidence node
	if len(g.Nodes) < 4 {
		t.Errorf("expected at least 4 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) < 3 {
		t.Errorf("expected at least 3 edges, got %d", len(g.Edges))
	}
}

func TestServer_History(t *testing.T) {
	srv, _ := testServer(t, nil)
	_, eventsPath := submitClaim(t, srv, testClaim)
	drainEvents(t, srv, eventsPath)

	resp, err := http.Get(srv.URL + "/v1/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var out struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(out.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(out.Records))
	}

	stats, err := http.Get(srv.URL + "/v1/history/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer stats.Body.Close()
	var st struct {
		Total int64 `json:"total"`
	}
	if err := json.NewDecoder(stats.Body).Decode(&st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.Total != 1 {
		t.Errorf("stats total = %d", st.Total)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := testServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
