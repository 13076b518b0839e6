package domain

import "context"

// RecordCodec is the narrow interface over the binary on-disk encoding of a
// record. The default implementation is gzip-compressed JSON; the numerical
// pipeline's own codec can be substituted as long as decode(encode(r))
// round-trips field for field.
type RecordCodec interface {
	Decode(ctx context.Context, path string) (Record, error)
	Encode(ctx context.Context, record Record) ([]byte, error)
}

// Renderer rasterizes a full record into one exportable image blob.
type Renderer interface {
	Render(ctx context.Context, record Record) ([]byte, error)
}

// SearchResult is the raw output of a period-search method before it is
// normalized into a PeriodogramBundle.
type SearchResult struct {
	// Peaks holds ranked period candidates, index 0 best.
	Peaks []float64
	// Periodogram is the rendered periodogram image.
	Periodogram []byte
	// Epochs optionally carries the fold epoch per peak; missing entries
	// default to the series start.
	Epochs []float64
}

// PeriodSearcher runs one concrete period-search algorithm over a series.
type PeriodSearcher interface {
	Search(ctx context.Context, series TimeSeries, params ToolParams) (SearchResult, error)
}

// Folder renders one phase-folded light curve at the given period and epoch.
type Folder interface {
	Fold(ctx context.Context, series TimeSeries, period, epoch float64) (PhasedLightCurve, error)
}

// SeriesPlotter renders an unfolded light-curve plot for a (possibly
// transformed) series.
type SeriesPlotter interface {
	Plot(ctx context.Context, series TimeSeries) ([]byte, error)
}
