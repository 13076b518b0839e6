package domain

import "fmt"

// ToolKind selects one of the fixed period-search methods or light-curve
// transforms a tool invocation can dispatch to.
type ToolKind string

// Tool kinds. The psearch-* kinds run a full period search and return a
// periodogram bundle; the remaining kinds re-fold or re-plot the series.
const (
	ToolSearchGLS ToolKind = "psearch-gls"
	ToolSearchBLS ToolKind = "psearch-bls"
	ToolSearchPDM ToolKind = "psearch-pdm"
	ToolSearchAOV ToolKind = "psearch-aov"
	ToolSearchSLS ToolKind = "psearch-sls"
	// ToolPhasedNewPeriod re-folds the series at a caller-supplied period.
	ToolPhasedNewPeriod ToolKind = "phasedlc-newperiod"
	// ToolPhasedNewEpoch re-folds the series at a caller-supplied epoch.
	ToolPhasedNewEpoch ToolKind = "phasedlc-newepoch"
	// ToolCutTime re-plots the series cut to a time window.
	ToolCutTime ToolKind = "simplelc-cuttime"
	// ToolSigClip re-plots the series after sigma clipping.
	ToolSigClip ToolKind = "simplelc-sigclip"
)

var searchMethods = map[ToolKind]Method{
	ToolSearchGLS: MethodGLS,
	ToolSearchBLS: MethodBLS,
	ToolSearchPDM: MethodPDM,
	ToolSearchAOV: MethodAOV,
	ToolSearchSLS: MethodSLS,
}

// SearchMethod returns the periodogram method tag for a period-search kind.
func (k ToolKind) SearchMethod() (Method, bool) {
	m, ok := searchMethods[k]
	return m, ok
}

// IsValid reports whether k names a known tool kind.
func (k ToolKind) IsValid() bool {
	if _, ok := searchMethods[k]; ok {
		return true
	}
	switch k {
	case ToolPhasedNewPeriod, ToolPhasedNewEpoch, ToolCutTime, ToolSigClip:
		return true
	}
	return false
}

// ToolParams carries the method-specific named values of a tool invocation.
// Zero values mean "not supplied"; each kind validates only the parameters
// it consumes.
type ToolParams struct {
	StartPeriod   float64 `json:"startp,omitempty"`
	EndPeriod     float64 `json:"endp,omitempty"`
	MagsAreFluxes bool    `json:"magsarefluxes,omitempty"`
	AutoFreq      bool    `json:"autofreq,omitempty"`
	StepSize      float64 `json:"stepsize,omitempty"`
	NBestPeaks    int     `json:"nbestpeaks,omitempty"`
	PeriodEpsilon float64 `json:"periodepsilon,omitempty"`
	SigClip       float64 `json:"sigclip,omitempty"`
	Period        float64 `json:"period,omitempty"`
	Epoch         float64 `json:"epoch,omitempty"`
	TimeMin       float64 `json:"timemin,omitempty"`
	TimeMax       float64 `json:"timemax,omitempty"`
}

// ToolInvocation is an ephemeral request to (re)run an analysis tool against
// one record. It is consumed once and discarded after merge or rejection.
type ToolInvocation struct {
	TargetID string     `json:"target"`
	Kind     ToolKind   `json:"lctool"`
	Params   ToolParams `json:"params"`
}

// Validate checks the invocation's parameters against the domains declared
// by its kind. It runs on the dispatching goroutine so rejected invocations
// never consume a worker slot.
func (inv ToolInvocation) Validate() error {
	if inv.TargetID == "" {
		return fmt.Errorf("%w: no checkplot provided", ErrInvalidInput)
	}
	if !inv.Kind.IsValid() {
		return fmt.Errorf("%w: unknown lctool %q", ErrInvalidInput, inv.Kind)
	}
	p := inv.Params
	if _, ok := inv.Kind.SearchMethod(); ok {
		if p.StartPeriod <= 0 {
			return InvalidParameterError{Name: "startp", Reason: "must be positive"}
		}
		if p.StartPeriod >= p.EndPeriod {
			return InvalidParameterError{Name: "startp", Reason: "must be less than endp"}
		}
		if !p.AutoFreq && p.StepSize <= 0 {
			return InvalidParameterError{Name: "stepsize", Reason: "must be positive when autofreq is off"}
		}
		if p.NBestPeaks < PhaseFoldCount {
			return InvalidParameterError{Name: "nbestpeaks", Reason: fmt.Sprintf("must be at least %d", PhaseFoldCount)}
		}
		if p.PeriodEpsilon <= 0 {
			return InvalidParameterError{Name: "periodepsilon", Reason: "must be positive"}
		}
		if p.SigClip <= 0 {
			return InvalidParameterError{Name: "sigclip", Reason: "must be positive"}
		}
		return nil
	}
	switch inv.Kind {
	case ToolPhasedNewPeriod:
		if p.Period <= 0 {
			return InvalidParameterError{Name: "period", Reason: "must be positive"}
		}
	case ToolPhasedNewEpoch:
		if p.Period <= 0 {
			return InvalidParameterError{Name: "period", Reason: "must be positive"}
		}
		if p.Epoch <= 0 {
			return InvalidParameterError{Name: "epoch", Reason: "must be positive"}
		}
	case ToolCutTime:
		if p.TimeMin >= p.TimeMax {
			return InvalidParameterError{Name: "timemin", Reason: "must be less than timemax"}
		}
	case ToolSigClip:
		if p.SigClip <= 0 {
			return InvalidParameterError{Name: "sigclip", Reason: "must be positive"}
		}
	}
	return nil
}
