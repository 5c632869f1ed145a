package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"asbuilt/internal/app"
	"asbuilt/internal/logger"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	ws, err := app.OpenWorkspace(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	handler, err := New(Config{Service: ws.Service(logger.Nop()), BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			ws.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func caseBody() map[string]any {
	return map[string]any{
		"document_ref": "w3-0100",
		"baseline": map[string]any{
			"header": map[string]any{"api": "42-000-00001"},
			"casing_program": []any{
				map[string]any{"name": "production", "od": 5.5, "top": 0, "bottom": 8000, "hole_size": 7.875},
			},
		},
		"events": []any{
			map[string]any{
				"category":  "set_plug",
				"narrative": "Spot 50 sx class H",
				"date":      "2024-03-01",
				"values":    map[string]any{"1": "1", "2": "50", "3": "H", "4": "4100", "5": "4000"},
			},
			map[string]any{
				"category":  "tag_toc",
				"narrative": "Tagged TOC",
				"date":      "2024-03-02",
				"values":    map[string]any{"1": "4050"},
			},
		},
	}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestReconstructAndFetchRun(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reconstructions?save=true", caseBody())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reconstruct status %d: %s", res.StatusCode, string(data))
	}
	var created ReconstructResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !created.Saved || created.RunID == "" || len(created.Result.Report.Plugs) != 1 {
		t.Fatalf("unexpected response %+v", created)
	}
	if toc := created.Result.Report.Plugs[0].TOC; toc == nil || *toc != 4050 {
		t.Fatalf("expected measured toc, got %v", toc)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/"+created.RunID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run status %d: %s", res.StatusCode, string(data))
	}
	var detail RunDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if detail.Run.WellID != "42-000-00001" || detail.Run.PlugCount != 1 {
		t.Fatalf("unexpected run %+v", detail.Run)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs?limit=10", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list runs status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedRuns
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal runs: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != created.RunID || page.NextCursor != "" {
		t.Fatalf("unexpected runs page %+v", page)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/"+created.RunID+"/events", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts paginatedEvents
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts.Items) != 1 || evts.Items[0].Type != "run.completed" {
		t.Fatalf("unexpected events %+v", evts)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/runs/"+created.RunID, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/"+created.RunID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
	var envelope apiError
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Body.Code != "not_found" {
		t.Fatalf("unexpected error envelope %s", string(data))
	}
}

func TestReconstructBaselineInvalid(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	body := caseBody()
	delete(body["baseline"].(map[string]any), "casing_program")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reconstructions", body)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope apiError
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Body.Code != "baseline_invalid" {
		t.Fatalf("unexpected code %q", envelope.Body.Code)
	}
	missing, _ := envelope.Body.Details["missing"].([]any)
	if len(missing) != 1 || missing[0] != "casing_program" {
		t.Fatalf("unexpected details %+v", envelope.Body.Details)
	}
}

func TestReconstructMalformedEventsAreWarnings(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	body := caseBody()
	body["events"] = []any{
		map[string]any{"category": "mystery", "narrative": "Crew change"},
		map[string]any{"category": "set_plug", "values": map[string]any{"4": "-10"}},
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reconstructions", body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var out ReconstructResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Saved || len(out.Result.Warnings) == 0 {
		t.Fatalf("expected unsaved result with warnings, got %+v", out)
	}
}

func TestOpenAPISpec(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("openapi not json: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v0/reconstructions"]; !ok {
		t.Fatalf("reconstructions path missing from spec")
	}
}
