// Package tools maps a tool invocation to one of the external analysis
// collaborators and normalizes its output into the canonical bundle shape.
package tools

import (
	"context"
	"fmt"

	"checkplotcore/pkg/domain"
)

// Result is the output of one tool run. Exactly one field is set, matching
// the invocation kind: a periodogram bundle for psearch-* kinds, a single
// phase-folded curve for phasedlc-* kinds, and a light-curve bundle for
// simplelc-* kinds.
type Result struct {
	Bundle     *domain.PeriodogramBundle
	Phased     *domain.PhasedLightCurve
	LightCurve *domain.LightCurveBundle
}

// Runner dispatches tool invocations to the registered period searchers and
// light-curve collaborators.
type Runner struct {
	searchers map[domain.Method]domain.PeriodSearcher
	folder    domain.Folder
	plotter   domain.SeriesPlotter
}

// NewRunner constructs a runner over the given collaborator set. Every fixed
// method tag must have a registered searcher.
func NewRunner(searchers map[domain.Method]domain.PeriodSearcher, folder domain.Folder, plotter domain.SeriesPlotter) (*Runner, error) {
	for _, m := range domain.Methods() {
		if _, ok := searchers[m]; !ok {
			return nil, fmt.Errorf("no period searcher registered for method %s", m)
		}
	}
	if folder == nil {
		return nil, fmt.Errorf("folder collaborator required")
	}
	if plotter == nil {
		return nil, fmt.Errorf("series plotter collaborator required")
	}
	return &Runner{searchers: searchers, folder: folder, plotter: plotter}, nil
}

// Run executes the invocation against the given series. The invocation must
// already have passed Validate; Run assumes in-domain parameters.
func (r *Runner) Run(ctx context.Context, inv domain.ToolInvocation, series domain.TimeSeries) (Result, error) {
	if method, ok := inv.Kind.SearchMethod(); ok {
		bundle, err := r.search(ctx, method, series, inv.Params)
		if err != nil {
			return Result{}, err
		}
		return Result{Bundle: &bundle}, nil
	}
	switch inv.Kind {
	case domain.ToolPhasedNewPeriod, domain.ToolPhasedNewEpoch:
		epoch := inv.Params.Epoch
		if epoch == 0 && len(series.Times) > 0 {
			epoch = series.Times[0]
		}
		phased, err := r.folder.Fold(ctx, series, inv.Params.Period, epoch)
		if err != nil {
			return Result{}, fmt.Errorf("%w: fold: %w", domain.ErrBackendFailure, err)
		}
		return Result{Phased: &phased}, nil
	case domain.ToolCutTime:
		cut := cutTime(series, inv.Params.TimeMin, inv.Params.TimeMax)
		return r.plot(ctx, cut)
	case domain.ToolSigClip:
		clipped := sigClip(series, inv.Params.SigClip)
		return r.plot(ctx, clipped)
	default:
		return Result{}, fmt.Errorf("%w: unknown lctool %q", domain.ErrInvalidInput, inv.Kind)
	}
}

// search runs one period-search method and normalizes its raw result into a
// well-formed bundle with exactly three ranked phase folds. A searcher
// reporting fewer than three peaks cannot fill the three fold slots and
// signals ErrInsufficientPeaks.
func (r *Runner) search(ctx context.Context, method domain.Method, series domain.TimeSeries, params domain.ToolParams) (domain.PeriodogramBundle, error) {
	raw, err := r.searchers[method].Search(ctx, series, params)
	if err != nil {
		return domain.PeriodogramBundle{}, fmt.Errorf("%w: %s search: %w", domain.ErrBackendFailure, method, err)
	}
	if len(raw.Peaks) < domain.PhaseFoldCount {
		return domain.PeriodogramBundle{}, fmt.Errorf("%w: %s found %d peaks, need %d",
			domain.ErrInsufficientPeaks, method, len(raw.Peaks), domain.PhaseFoldCount)
	}

	bundle := domain.PeriodogramBundle{
		BestPeriods: raw.Peaks,
		Periodogram: raw.Periodogram,
		BestPeriod:  raw.Peaks[0],
		PhaseFolded: make([]domain.PhasedLightCurve, domain.PhaseFoldCount),
	}
	for i := 0; i < domain.PhaseFoldCount; i++ {
		epoch := 0.0
		if i < len(raw.Epochs) {
			epoch = raw.Epochs[i]
		}
		if epoch == 0 && len(series.Times) > 0 {
			epoch = series.Times[0]
		}
		phased, err := r.folder.Fold(ctx, series, raw.Peaks[i], epoch)
		if err != nil {
			return domain.PeriodogramBundle{}, fmt.Errorf("%w: fold rank %d: %w", domain.ErrBackendFailure, i, err)
		}
		bundle.PhaseFolded[i] = phased
	}
	if err := bundle.Validate(); err != nil {
		return domain.PeriodogramBundle{}, err
	}
	return bundle, nil
}

func (r *Runner) plot(ctx context.Context, series domain.TimeSeries) (Result, error) {
	img, err := r.plotter.Plot(ctx, series)
	if err != nil {
		return Result{}, fmt.Errorf("%w: plot: %w", domain.ErrBackendFailure, err)
	}
	return Result{LightCurve: &domain.LightCurveBundle{Plot: img, NDet: series.NDet()}}, nil
}
