package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"asbuilt/internal/app"
	"asbuilt/internal/domain"
	"asbuilt/internal/events"
	"asbuilt/internal/logger"
	"asbuilt/internal/repo"
)

const caseYAML = `document_ref: w3-0042
baseline:
  header:
    api: "42-123-45678"
    operator: Example Oil
  casing_program:
    - name: surface
      od: 8.625
      top: 0
      bottom: 1200
      hole_size: 12.25
    - name: production
      od: 5.5
      top: 0
      bottom: 8000
      hole_size: 7.875
  perforations:
    - {top: 7600, bottom: 7650}
  remarks: Well plugged per district instructions.
events:
  - category: set_cement_plug
    narrative: Spot 40 sx class C
    date: "2024-04-01"
    values: {"1": "1", "2": "40", "3": "C", "4": "7550", "5": "7400"}
  - category: tag_toc
    narrative: Tagged TOC at 7,420'
    date: "2024-04-02"
    values: {"1": "7420"}
`

func writeCase(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write case: %v", err)
	}
	return path
}

func TestLoadCaseYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	in, err := app.LoadCase(writeCase(t, dir, "case.yml", caseYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if in.DocumentRef != "w3-0042" || len(in.Baseline.CasingProgram) != 2 || len(in.Events) != 2 {
		t.Fatalf("unexpected case %+v", in)
	}
	if in.Events[0].Values["4"] != "7550" || in.Baseline.Header["api"] != "42-123-45678" {
		t.Fatalf("values not decoded: %+v", in.Events[0])
	}

	js := `{"baseline":{"header":{},"casing_program":[]},"events":[{"category":"perforate","values":{"1":"3000"}}]}`
	in, err = app.LoadCase(writeCase(t, dir, "case.json", js))
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if in.Baseline.Header == nil || in.Baseline.CasingProgram == nil || in.Events[0].Category != "perforate" {
		t.Fatalf("unexpected json case %+v", in)
	}

	if _, err := app.LoadCase(writeCase(t, dir, "bad.json", "{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func openService(t *testing.T) (app.Service, *app.Workspace) {
	t.Helper()
	ws, err := app.OpenWorkspace(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	svc := ws.Service(logger.Nop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }
	svc.Events.Now = svc.Now
	return svc, ws
}

func TestServiceRunArchives(t *testing.T) {
	svc, ws := openService(t)
	ctx := context.Background()
	in, err := app.ParseCase([]byte(caseYAML), false)
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.Run(ctx, in, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Saved || len(out.Result.Report.Plugs) != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	id, _, _ := app.RunID(in)
	if out.RunID != id {
		t.Fatalf("run id not derived from input")
	}

	again, err := svc.Run(ctx, in, true)
	if err != nil {
		t.Fatal(err)
	}
	if again.Saved || again.RunID != out.RunID {
		t.Fatalf("identical input should reuse the archived run: %+v", again)
	}

	run, stored, err := svc.Get(ctx, out.RunID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.WellID != "42-123-45678" || run.PlugCount != 1 || run.CreatedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected run %+v", run)
	}
	if diff := cmp.Diff(out.Result, stored); diff != "" {
		t.Fatalf("stored result differs:\n%s", diff)
	}

	r := repo.Repo{DB: ws.DB}
	evts, err := r.EventsForRun(ctx, out.RunID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 || evts[0].Type != events.TypeRunCompleted {
		t.Fatalf("unexpected events %+v", evts)
	}
	runs, err := r.ListRuns(ctx, repo.RunFilters{WellID: "42-123-45678"})
	if err != nil || len(runs) != 1 || runs[0].ResultJSON != "" {
		t.Fatalf("list runs = %+v, %v", runs, err)
	}
}

func TestServiceRunBaselineInvalid(t *testing.T) {
	svc, ws := openService(t)
	ctx := context.Background()
	in, _ := app.ParseCase([]byte(caseYAML), false)
	in.Baseline.Header = nil

	out, err := svc.Run(ctx, in, true)
	var invalid *domain.BaselineInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected BaselineInvalidError, got %v", err)
	}
	if !out.Saved || !out.Result.Failed {
		t.Fatalf("failed run should still be archived: %+v", out)
	}
	evts, _ := repo.Repo{DB: ws.DB}.EventsForRun(ctx, out.RunID, 10, 0)
	if len(evts) != 1 || evts[0].Type != events.TypeRunFailed {
		t.Fatalf("expected run.failed event, got %+v", evts)
	}
	failed := true
	runs, _ := repo.Repo{DB: ws.DB}.ListRuns(ctx, repo.RunFilters{Failed: &failed})
	if len(runs) != 1 {
		t.Fatalf("expected one failed run, got %d", len(runs))
	}
}

func TestServiceRunWithoutSave(t *testing.T) {
	svc, _ := openService(t)
	ctx := context.Background()
	in, _ := app.ParseCase([]byte(caseYAML), false)
	out, err := svc.Run(ctx, in, false)
	if err != nil || out.Saved {
		t.Fatalf("unexpected outcome %+v %v", out, err)
	}
	if _, _, err := svc.Get(ctx, out.RunID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
