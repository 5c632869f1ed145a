package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"asbuilt/internal/casing"
	"asbuilt/internal/config"
	"asbuilt/internal/domain"
	"asbuilt/internal/logger"
	"asbuilt/internal/normalize"
	"asbuilt/internal/plugs"
	"asbuilt/internal/report"
	"asbuilt/internal/volume"
)

// Engine runs reconstructions. It holds no per-run state, so one value may serve
// concurrent calls.
type Engine struct {
	Config     *config.Config
	Log        *logger.Logger
	Normalizer normalize.Normalizer
	Calc       volume.Calculator
	Formatter  report.Formatter
}

// Input is one well's baseline plus its ordered field events.
type Input struct {
	Baseline    domain.Baseline        `json:"baseline" yaml:"baseline"`
	Events      []domain.RawFieldEvent `json:"events" yaml:"events"`
	DocumentRef string                 `json:"document_ref,omitempty" yaml:"document_ref"`
}

func New(cfg *config.Config, log *logger.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	calc := cfg.Calculator()
	f := report.NewFormatter(calc)
	f.DatePrefix = cfg.DatePrefix()
	if cfg.Engine.RemarkDateLayout != "" {
		f.DateLayout = cfg.Engine.RemarkDateLayout
	}
	return Engine{
		Config:     cfg,
		Log:        log,
		Normalizer: normalize.New(cfg.Categories.Aliases),
		Calc:       calc,
		Formatter:  f,
	}
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

// ValidateBaseline checks the sections a reconstruction cannot do without.
func ValidateBaseline(b domain.Baseline) error {
	var missing []string
	if b.Header == nil {
		missing = append(missing, "header")
	}
	if b.CasingProgram == nil {
		missing = append(missing, "casing_program")
	}
	if len(missing) > 0 {
		return &domain.BaselineInvalidError{Missing: missing}
	}
	return nil
}

func emptyReport() domain.Report {
	return domain.Report{
		Header:       map[string]string{},
		Plugs:        []domain.PlugRow{},
		Casing:       []domain.CasingRecord{},
		Perforations: []domain.PerforationRow{},
	}
}

// Reconstruct turns a baseline and its events into the as-built report. The only error
// besides context cancellation is *domain.BaselineInvalidError, in which case the
// returned Result is marked failed and carries no plug rows.
func (e Engine) Reconstruct(ctx context.Context, in Input) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	log := e.log()
	if err := ValidateBaseline(in.Baseline); err != nil {
		log.Warn("baseline rejected", "error", err)
		return domain.Result{
			Report:   emptyReport(),
			Warnings: []string{},
			Errors:   []string{err.Error()},
			Failed:   true,
		}, err
	}

	var diag domain.Diagnostics
	state, errs := casing.Initialize(in.Baseline.CasingProgram)
	diag.Add(errs...)

	events := make([]domain.NormalizedEvent, 0, len(in.Events))
	for i, raw := range in.Events {
		ev, warns := e.Normalizer.Normalize(raw, i)
		diag.Add(warns...)
		events = append(events, ev)
	}
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	asm, errs := plugs.Assemble(events, state)
	diag.Add(errs...)
	log.Debug("events assembled", "summary", asm.String())

	diag.Add(e.Formatter.Finalize(asm.Plugs, state)...)
	rep, errs := e.Formatter.Format(report.Input{
		Baseline:    in.Baseline,
		State:       state,
		Assembly:    asm,
		DocumentRef: in.DocumentRef,
	})
	diag.Add(errs...)

	for _, w := range diag.Errors() {
		log.Debug("reconstruction warning", "warning", w.Error())
	}
	log.Info("reconstruction complete", "plugs", len(rep.Plugs), "warnings", diag.Len())
	return domain.Result{Report: rep, Warnings: diag.Strings()}, nil
}

func (e Engine) parallelism() int {
	if e.Config != nil && e.Config.Engine.Parallelism > 0 {
		return e.Config.Engine.Parallelism
	}
	return 4
}

// ReconstructBatch runs independent reconstructions with at most parallelism in flight.
// Results keep input order. A rejected baseline is reported in its own Result; only
// cancellation fails the batch.
func (e Engine) ReconstructBatch(ctx context.Context, inputs []Input, parallelism int) ([]domain.Result, error) {
	if parallelism <= 0 {
		parallelism = e.parallelism()
	}
	results := make([]domain.Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := e.Reconstruct(gctx, in)
			var invalid *domain.BaselineInvalidError
			if err != nil && !errors.As(err, &invalid) {
				return fmt.Errorf("reconstruct input %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
