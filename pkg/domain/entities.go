// Package domain defines the persistent checkplot entities, value types, and
// error taxonomy used by checkplotcore.
package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Method identifies a period-search method whose results are attached to a
// checkplot record.
type Method string

// Supported period-search method tags used as keys in Record.Periodograms.
const (
	// MethodGLS identifies generalized Lomb-Scargle results.
	MethodGLS Method = "gls"
	// MethodBLS identifies box least squares results.
	MethodBLS Method = "bls"
	// MethodPDM identifies phase dispersion minimization results.
	MethodPDM Method = "pdm"
	// MethodAOV identifies analysis-of-variance results.
	MethodAOV Method = "aov"
	// MethodSLS identifies the secondary Lomb-Scargle variant.
	MethodSLS Method = "sls"
)

// Methods returns the fixed method tags in their canonical envelope order.
func Methods() []Method {
	return []Method{MethodPDM, MethodAOV, MethodBLS, MethodGLS, MethodSLS}
}

// IsValid reports whether m is one of the fixed method tags.
func (m Method) IsValid() bool {
	return slices.Contains(Methods(), m)
}

// RecordStatus represents the processing status recorded by the upstream
// analysis pipeline.
type RecordStatus string

// Canonical record statuses written by the pipeline and surfaced in envelopes.
const (
	StatusComplete   RecordStatus = "complete"
	StatusIncomplete RecordStatus = "incomplete"
	StatusErrored    RecordStatus = "errored"
)

// Manifest is the project-level index of known record identifiers plus
// reviewer annotations. The on-disk JSON file is the sole durable source of
// truth; the in-memory copy is rewritten to disk in full on every accepted
// mutation.
type Manifest struct {
	// RootPath is the storage location of the manifest file. It is process
	// state, not part of the serialized manifest.
	RootPath string `json:"-"`
	// RecordIDs holds the ordered record identifiers (relative paths).
	RecordIDs []string `json:"checkplots"`
	// Reviewed maps objectid to an arbitrary structured review annotation.
	Reviewed map[string]json.RawMessage `json:"reviewed"`
}

// Contains reports whether id is a registered record identifier.
func (m Manifest) Contains(id string) bool {
	return slices.Contains(m.RecordIDs, id)
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (m Manifest) Clone() Manifest {
	out := Manifest{RootPath: m.RootPath}
	out.RecordIDs = slices.Clone(m.RecordIDs)
	if m.Reviewed != nil {
		out.Reviewed = make(map[string]json.RawMessage, len(m.Reviewed))
		for k, v := range m.Reviewed {
			out.Reviewed[k] = slices.Clone(v)
		}
	}
	return out
}

// TimeSeries carries the observed magnitude series for one object along with
// its rendered plot.
type TimeSeries struct {
	Times []float64 `json:"times"`
	Mags  []float64 `json:"mags"`
	Errs  []float64 `json:"errs,omitempty"`
	Plot  []byte    `json:"plot,omitempty"`
}

// NDet returns the number of detections in the series.
func (t TimeSeries) NDet() int { return len(t.Times) }

// PhasedLightCurve is one ranked phase-folded rendering of the series.
type PhasedLightCurve struct {
	Plot   []byte  `json:"plot"`
	Period float64 `json:"period"`
	Epoch  float64 `json:"epoch"`
}

// PhaseFoldCount is the required number of ranked phase-folded entries in a
// well-formed bundle: the primary fold plus two alternates.
const PhaseFoldCount = 3

// PeriodogramBundle is a periodogram result plus its three ranked
// phase-folded light-curve renderings.
type PeriodogramBundle struct {
	// BestPeriods is the ranked sequence of period candidates, index 0 best.
	BestPeriods []float64 `json:"nbestperiods"`
	// Periodogram is the rendered periodogram image blob.
	Periodogram []byte `json:"periodogram"`
	// BestPeriod mirrors BestPeriods[0] for a well-formed bundle.
	BestPeriod float64 `json:"bestperiod"`
	// PhaseFolded holds exactly PhaseFoldCount ranked folds.
	PhaseFolded []PhasedLightCurve `json:"phasedlcs"`
}

// Validate rejects malformed bundles before they can be merged into a record.
func (b PeriodogramBundle) Validate() error {
	if len(b.BestPeriods) == 0 {
		return fmt.Errorf("%w: no best periods", ErrMalformedBundle)
	}
	if b.BestPeriod != b.BestPeriods[0] {
		return fmt.Errorf("%w: bestperiod %v != nbestperiods[0] %v",
			ErrMalformedBundle, b.BestPeriod, b.BestPeriods[0])
	}
	if len(b.PhaseFolded) != PhaseFoldCount {
		return fmt.Errorf("%w: %d phase-folded entries, need %d",
			ErrMalformedBundle, len(b.PhaseFolded), PhaseFoldCount)
	}
	return nil
}

// LightCurveBundle is the result of a light-curve transform: a re-plotted
// (possibly re-folded, cut, or clipped) series. Unlike a PeriodogramBundle
// it is never persisted into a record.
type LightCurveBundle struct {
	Plot []byte `json:"plot"`
	NDet int    `json:"ndet"`
}

// Record is the persisted per-object analysis artifact (one checkplot).
type Record struct {
	ObjectID     string                       `json:"objectid"`
	ObjectInfo   map[string]any               `json:"objectinfo"`
	VarInfo      map[string]any               `json:"varinfo"`
	Comments     []string                     `json:"comments,omitempty"`
	Status       RecordStatus                 `json:"status"`
	FinderChart  []byte                       `json:"finderchart,omitempty"`
	TimeSeries   TimeSeries                   `json:"magseries"`
	Periodograms map[Method]PeriodogramBundle `json:"periodograms,omitempty"`
}

// Clone returns a deep copy of the record. Image blobs are copied so a
// caller cannot alias the stored bytes.
func (r Record) Clone() Record {
	out := r
	out.ObjectInfo = cloneBag(r.ObjectInfo)
	out.VarInfo = cloneBag(r.VarInfo)
	out.Comments = slices.Clone(r.Comments)
	out.FinderChart = slices.Clone(r.FinderChart)
	out.TimeSeries = r.TimeSeries.clone()
	if r.Periodograms != nil {
		out.Periodograms = make(map[Method]PeriodogramBundle, len(r.Periodograms))
		for m, b := range r.Periodograms {
			out.Periodograms[m] = b.clone()
		}
	}
	return out
}

func (t TimeSeries) clone() TimeSeries {
	return TimeSeries{
		Times: slices.Clone(t.Times),
		Mags:  slices.Clone(t.Mags),
		Errs:  slices.Clone(t.Errs),
		Plot:  slices.Clone(t.Plot),
	}
}

func (b PeriodogramBundle) clone() PeriodogramBundle {
	out := PeriodogramBundle{
		BestPeriods: slices.Clone(b.BestPeriods),
		Periodogram: slices.Clone(b.Periodogram),
		BestPeriod:  b.BestPeriod,
	}
	out.PhaseFolded = make([]PhasedLightCurve, len(b.PhaseFolded))
	for i, p := range b.PhaseFolded {
		out.PhaseFolded[i] = PhasedLightCurve{Plot: slices.Clone(p.Plot), Period: p.Period, Epoch: p.Epoch}
	}
	return out
}

func cloneBag(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RecordPatch describes the caller-editable subset of a record for a
// read-modify-write save. Nil fields mean "leave unchanged".
type RecordPatch struct {
	ObjectInfo map[string]any
	VarInfo    map[string]any
	Comments   []string
	// Method and Bundle attach a newly computed periodogram bundle. The
	// bundle must validate before the merge is attempted.
	Method Method
	Bundle *PeriodogramBundle
}

// Empty reports whether the patch carries no accepted changes.
func (p RecordPatch) Empty() bool {
	return p.ObjectInfo == nil && p.VarInfo == nil && p.Comments == nil && p.Bundle == nil
}
