package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"asbuilt/internal/domain"
	"asbuilt/internal/engine"
	"asbuilt/internal/events"
	"asbuilt/internal/logger"
	"asbuilt/internal/repo"
)

// Service runs reconstructions and optionally archives them with their events.
type Service struct {
	Engine engine.Engine
	Repo   repo.Repo
	Events events.Writer
	Log    *logger.Logger
	Now    func() time.Time
}

type Outcome struct {
	RunID  string        `json:"run_id"`
	Saved  bool          `json:"saved"`
	Result domain.Result `json:"result"`
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) log() *logger.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.Nop()
}

// RunID derives the archive id from the canonical JSON of the input, so identical
// inputs map to the same run.
func RunID(in engine.Input) (string, []byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return "", nil, fmt.Errorf("encode input: %w", err)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, data).String(), data, nil
}

// WellID picks the well identifier from the baseline header.
func WellID(b domain.Baseline) string {
	for _, k := range []string{"api", "api_number", "well_id"} {
		if v := b.Header[k]; v != "" {
			return v
		}
	}
	return ""
}

// Run reconstructs in. A rejected baseline still produces an Outcome (and is archived
// when save is set); the *domain.BaselineInvalidError is returned alongside it.
func (s Service) Run(ctx context.Context, in engine.Input, save bool) (Outcome, error) {
	id, inputJSON, err := RunID(in)
	if err != nil {
		return Outcome{}, err
	}
	res, runErr := s.Engine.Reconstruct(ctx, in)
	var invalid *domain.BaselineInvalidError
	if runErr != nil && !errors.As(runErr, &invalid) {
		return Outcome{}, runErr
	}
	out := Outcome{RunID: id, Result: res}
	if !save {
		return out, runErr
	}
	saved, err := s.archive(ctx, id, in, inputJSON, res)
	if err != nil {
		return Outcome{}, err
	}
	out.Saved = saved
	return out, runErr
}

func (s Service) archive(ctx context.Context, id string, in engine.Input, inputJSON []byte, res domain.Result) (bool, error) {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	run := domain.Run{
		ID:           id,
		WellID:       WellID(in.Baseline),
		DocumentRef:  in.DocumentRef,
		Failed:       res.Failed,
		PlugCount:    len(res.Report.Plugs),
		WarningCount: len(res.Warnings),
		InputJSON:    string(inputJSON),
		ResultJSON:   string(resultJSON),
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	inserted, err := s.Repo.InsertRun(ctx, tx, run)
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	evtType := events.TypeRunCompleted
	payload := events.EventPayload{"plugs": run.PlugCount, "warnings": run.WarningCount, "new": inserted}
	if res.Failed {
		evtType = events.TypeRunFailed
		payload["errors"] = res.Errors
	}
	if err := s.Events.Append(ctx, tx, evtType, id, payload); err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	s.log().Info("run archived", "run_id", id, "well_id", run.WellID, "new", inserted)
	return inserted, nil
}

// Get returns an archived run with its decoded result.
func (s Service) Get(ctx context.Context, id string) (domain.Run, domain.Result, error) {
	run, err := s.Repo.GetRun(ctx, id)
	if err != nil {
		return run, domain.Result{}, err
	}
	var res domain.Result
	if err := json.Unmarshal([]byte(run.ResultJSON), &res); err != nil {
		return run, res, fmt.Errorf("decode stored result %s: %w", id, err)
	}
	return run, res, nil
}
