package core

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"checkplotcore/internal/tools"
	"checkplotcore/pkg/domain"
)

// ResponseAssembler builds the canonical response envelopes from already
// validated operation outputs. It is pure: it never mutates its inputs and
// every failure path is represented as an error envelope rather than a
// returned error.
type ResponseAssembler struct {
	// ReadOnly is echoed into every envelope so the frontend can disable
	// editing controls.
	ReadOnly bool
}

// Load assembles the full record envelope returned by a checkplot load.
func (a ResponseAssembler) Load(record domain.Record) domain.Envelope {
	result := map[string]any{
		"objectid":       record.ObjectID,
		"objectinfo":     record.ObjectInfo,
		"objectcomments": record.Comments,
		"varinfo":        record.VarInfo,
		"finderchart":    encodeBlob(record.FinderChart),
		"magseries":      encodeBlob(record.TimeSeries.Plot),
		"magseries_ndet": record.TimeSeries.NDet(),
		"cpstatus":       string(record.Status),
	}
	for _, m := range domain.Methods() {
		bundle, ok := record.Periodograms[m]
		if !ok {
			continue
		}
		result[string(m)] = bundleResult(bundle)
	}
	return domain.Envelope{
		Status:   domain.EnvelopeOK,
		Message:  "checkplot successfully loaded",
		ReadOnly: a.ReadOnly,
		Result:   result,
		Code:     http.StatusOK,
	}
}

// Update assembles the envelope acknowledging an accepted record update.
// pngLocation carries the exported PNG path, the literal failure marker, or
// the empty string when no export was requested.
func (a ResponseAssembler) Update(path string, at time.Time, changes map[string]any, pngLocation string) domain.Envelope {
	result := map[string]any{
		"checkplot": filepath.Base(path),
		"unixtime":  at.UTC().Unix(),
		"changes":   changes,
	}
	if pngLocation != "" {
		result["cpfpng"] = pngLocation
	}
	return domain.Envelope{
		Status:   domain.EnvelopeSuccess,
		Message:  fmt.Sprintf("checkplot update successful. %s", at.UTC().Format(time.RFC3339)),
		ReadOnly: a.ReadOnly,
		Result:   result,
		Code:     http.StatusOK,
	}
}

// Project assembles the project index envelope: the ordered identifiers plus
// their display basenames and the current review annotations.
func (a ResponseAssembler) Project(m domain.Manifest) domain.Envelope {
	names := make([]string, len(m.RecordIDs))
	for i, id := range m.RecordIDs {
		names[i] = filepath.Base(id)
	}
	reviewed := make(map[string]any, len(m.Reviewed))
	for objectID, annotation := range m.Reviewed {
		reviewed[objectID] = annotation
	}
	return domain.Envelope{
		Status:   domain.EnvelopeOK,
		Message:  "checkplot list loaded",
		ReadOnly: a.ReadOnly,
		Result: map[string]any{
			"checkplots": append([]string(nil), m.RecordIDs...),
			"cpnames":    names,
			"nfiles":     len(m.RecordIDs),
			"reviewed":   reviewed,
		},
		Code: http.StatusOK,
	}
}

// Review assembles the envelope acknowledging a recorded review annotation.
func (a ResponseAssembler) Review(objectID string, changes any) domain.Envelope {
	return domain.Envelope{
		Status:   domain.EnvelopeSuccess,
		Message:  fmt.Sprintf("wrote all changes to the checkplot filelist from the frontend for object: %s", objectID),
		ReadOnly: a.ReadOnly,
		Result: map[string]any{
			"objectid": objectID,
			"changes":  changes,
		},
		Code: http.StatusOK,
	}
}

// Tool assembles the envelope for a completed tool run. The result shape
// follows the invocation kind: a per-method bundle for period searches, a
// single phased fold for re-folds, and a re-plotted series otherwise.
func (a ResponseAssembler) Tool(objectID string, inv domain.ToolInvocation, res tools.Result) domain.Envelope {
	result := map[string]any{
		"objectid": objectID,
		"lctool":   string(inv.Kind),
	}
	switch {
	case res.Bundle != nil:
		method, _ := inv.Kind.SearchMethod()
		result[string(method)] = bundleResult(*res.Bundle)
	case res.Phased != nil:
		result["phasedlc"] = phasedResult(*res.Phased)
	case res.LightCurve != nil:
		result["magseries"] = map[string]any{
			"plot": encodeBlob(res.LightCurve.Plot),
			"ndet": res.LightCurve.NDet,
		}
	}
	return domain.Envelope{
		Status:   domain.EnvelopeSuccess,
		Message:  fmt.Sprintf("lctool %s finished OK", inv.Kind),
		ReadOnly: a.ReadOnly,
		Result:   result,
		Code:     http.StatusOK,
	}
}

// Error converts any error from the operation taxonomy into an error
// envelope. The message is the error text verbatim; the wire messages the
// frontend matches on are baked into the taxonomy.
func (a ResponseAssembler) Error(err error) domain.Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return domain.Envelope{
		Status:   domain.EnvelopeError,
		Message:  msg,
		ReadOnly: a.ReadOnly,
		Result:   nil,
		Code:     domain.StatusCode(err),
	}
}

// bundleResult flattens one periodogram bundle into the per-method wire map
// with its three ranked folds keyed phasedlc0..phasedlc2.
func bundleResult(b domain.PeriodogramBundle) map[string]any {
	out := map[string]any{
		"nbestperiods": append([]float64(nil), b.BestPeriods...),
		"periodogram":  encodeBlob(b.Periodogram),
		"bestperiod":   b.BestPeriod,
	}
	for i, fold := range b.PhaseFolded {
		out[fmt.Sprintf("phasedlc%d", i)] = phasedResult(fold)
	}
	return out
}

func phasedResult(p domain.PhasedLightCurve) map[string]any {
	return map[string]any{
		"plot":   encodeBlob(p.Plot),
		"period": p.Period,
		"epoch":  p.Epoch,
	}
}

// encodeBlob transports binary image data as a base64 string. Nil blobs map
// to nil so the frontend can distinguish "absent" from "empty".
func encodeBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return base64.StdEncoding.EncodeToString(b)
}
