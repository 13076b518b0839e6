package domain

import (
	"errors"
	"testing"
)

func validSearchParams() ToolParams {
	return ToolParams{
		StartPeriod:   0.1,
		EndPeriod:     100,
		StepSize:      1e-4,
		NBestPeaks:    5,
		PeriodEpsilon: 0.01,
		SigClip:       4,
	}
}

func TestToolKindSearchMethod(t *testing.T) {
	pairs := map[ToolKind]Method{
		ToolSearchGLS: MethodGLS,
		ToolSearchBLS: MethodBLS,
		ToolSearchPDM: MethodPDM,
		ToolSearchAOV: MethodAOV,
		ToolSearchSLS: MethodSLS,
	}
	for kind, want := range pairs {
		got, ok := kind.SearchMethod()
		if !ok || got != want {
			t.Fatalf("%s: method = %s ok=%v, want %s", kind, got, ok, want)
		}
	}
	if _, ok := ToolCutTime.SearchMethod(); ok {
		t.Fatalf("transform kind must not map to a search method")
	}
}

func TestToolInvocationValidateAcceptsInDomainParams(t *testing.T) {
	cases := []ToolInvocation{
		{TargetID: "cp.pkl", Kind: ToolSearchGLS, Params: validSearchParams()},
		{TargetID: "cp.pkl", Kind: ToolSearchBLS, Params: validSearchParams()},
		{TargetID: "cp.pkl", Kind: ToolPhasedNewPeriod, Params: ToolParams{Period: 1.23}},
		{TargetID: "cp.pkl", Kind: ToolPhasedNewEpoch, Params: ToolParams{Period: 1.23, Epoch: 56789.1}},
		{TargetID: "cp.pkl", Kind: ToolCutTime, Params: ToolParams{TimeMin: 100, TimeMax: 200}},
		{TargetID: "cp.pkl", Kind: ToolSigClip, Params: ToolParams{SigClip: 3}},
	}
	for _, inv := range cases {
		if err := inv.Validate(); err != nil {
			t.Fatalf("%s: unexpected rejection: %v", inv.Kind, err)
		}
	}
}

func TestToolInvocationValidateAutoFreqSkipsStepSize(t *testing.T) {
	params := validSearchParams()
	params.StepSize = 0
	params.AutoFreq = true
	inv := ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchPDM, Params: params}
	if err := inv.Validate(); err != nil {
		t.Fatalf("autofreq should make stepsize optional: %v", err)
	}
}

func TestToolInvocationValidateRejectsOutOfDomainParams(t *testing.T) {
	mutate := func(fn func(*ToolParams)) ToolParams {
		p := validSearchParams()
		fn(&p)
		return p
	}
	cases := []struct {
		name  string
		inv   ToolInvocation
		param string
	}{
		{"missing target", ToolInvocation{Kind: ToolSearchGLS, Params: validSearchParams()}, ""},
		{"unknown kind", ToolInvocation{TargetID: "cp.pkl", Kind: "psearch-dft"}, ""},
		{"nonpositive startp", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.StartPeriod = 0 })}, "startp"},
		{"startp above endp", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.StartPeriod = 200 })}, "startp"},
		{"zero stepsize", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.StepSize = 0 })}, "stepsize"},
		{"too few peaks", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.NBestPeaks = 2 })}, "nbestpeaks"},
		{"zero periodepsilon", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.PeriodEpsilon = 0 })}, "periodepsilon"},
		{"zero sigclip", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSearchGLS,
			Params: mutate(func(p *ToolParams) { p.SigClip = 0 })}, "sigclip"},
		{"zero period refold", ToolInvocation{TargetID: "cp.pkl", Kind: ToolPhasedNewPeriod}, "period"},
		{"zero epoch refold", ToolInvocation{TargetID: "cp.pkl", Kind: ToolPhasedNewEpoch,
			Params: ToolParams{Period: 1.2}}, "epoch"},
		{"inverted window", ToolInvocation{TargetID: "cp.pkl", Kind: ToolCutTime,
			Params: ToolParams{TimeMin: 200, TimeMax: 100}}, "timemin"},
		{"zero sigclip transform", ToolInvocation{TargetID: "cp.pkl", Kind: ToolSigClip}, "sigclip"},
	}
	for _, tc := range cases {
		err := tc.inv.Validate()
		if err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if tc.param == "" {
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
			}
			continue
		}
		var paramErr InvalidParameterError
		if !errors.As(err, &paramErr) {
			t.Fatalf("%s: expected InvalidParameterError, got %v", tc.name, err)
		}
		if paramErr.Name != tc.param {
			t.Fatalf("%s: rejected parameter %s, want %s", tc.name, paramErr.Name, tc.param)
		}
	}
}
