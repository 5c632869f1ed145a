package asbuiltsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReconstructSendsSaveAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/reconstructions" || r.URL.Query().Get("save") != "true" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["document_ref"] != "w3-1" {
			t.Errorf("unexpected body %v (%v)", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"run_id":"abc","saved":true,"result":{"report":{"plugs":[{"plug_number":1,"toc":4050}]},"warnings":[],"failed":false}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Reconstruct(context.Background(), map[string]any{"document_ref": "w3-1"}, true)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if got.RunID != "abc" || !got.Saved || len(got.Result.Report.Plugs) != 1 || *got.Result.Report.Plugs[0].TOC != 4050 {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"baseline_invalid","message":"baseline invalid: missing header"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Reconstruct(context.Background(), map[string]any{}, false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "baseline_invalid" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestRunsPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v0/runs" || q.Get("well_id") != "42-1" || q.Get("limit") != "5" || q.Get("cursor") != "t|id" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"items":[{"id":"r1","plug_count":2}],"next_cursor":"x"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).RunsPage(context.Background(), "42-1", 5, "t|id")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].PlugCount != 2 || page.NextCursor != "x" {
		t.Fatalf("unexpected page %+v", page)
	}
}
