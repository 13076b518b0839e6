package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"checkplotcore/internal/artifacts"
	"checkplotcore/internal/infra/manifest"
	"checkplotcore/internal/infra/records"
	"checkplotcore/internal/tools"
	"checkplotcore/pkg/domain"
)

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, series domain.TimeSeries, _ domain.ToolParams) (domain.SearchResult, error) {
	return domain.SearchResult{
		Peaks:       []float64{0.5, 1.0, 0.25},
		Periodogram: []byte("pgram"),
		Epochs:      []float64{series.Times[0]},
	}, nil
}

type stubFolder struct{}

func (stubFolder) Fold(_ context.Context, _ domain.TimeSeries, period, epoch float64) (domain.PhasedLightCurve, error) {
	return domain.PhasedLightCurve{Plot: []byte("fold"), Period: period, Epoch: epoch}, nil
}

type stubPlotter struct{}

func (stubPlotter) Plot(_ context.Context, series domain.TimeSeries) ([]byte, error) {
	return []byte(fmt.Sprintf("plot-%d", series.NDet())), nil
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(_ context.Context, _ domain.Record) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

const testRecordID = "checkplot-HAT-579-0025234.pkl"

func testRecord() domain.Record {
	return domain.Record{
		ObjectID:   "HAT-579-0025234",
		ObjectInfo: map[string]any{"ra": 290.5},
		VarInfo:    map[string]any{"vartype": "RRab"},
		Comments:   []string{"initial pass"},
		Status:     domain.StatusComplete,
		TimeSeries: domain.TimeSeries{
			Times: []float64{100, 101, 102, 103},
			Mags:  []float64{12.0, 12.1, 12.0, 12.2},
		},
	}
}

func newStubRunner(t *testing.T) *tools.Runner {
	t.Helper()
	searchers := make(map[domain.Method]domain.PeriodSearcher)
	for _, m := range domain.Methods() {
		searchers[m] = stubSearcher{}
	}
	runner, err := tools.NewRunner(searchers, stubFolder{}, stubPlotter{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

// newTestService writes the sample record under a temp root and wires a full
// service around it.
func newTestService(t *testing.T, opts ...Option) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	data, err := records.GzipJSONCodec{}.Encode(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, testRecordID), data, 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
	m := manifest.NewMemoryStore(testRecordID)
	store := records.NewStore(root, m, nil)
	svc, err := NewService(m, store, newStubRunner(t), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, root
}

func token(id string) string {
	return base64.StdEncoding.EncodeToString([]byte(id))
}

func validSearchInvocation(target string) domain.ToolInvocation {
	return domain.ToolInvocation{
		TargetID: target,
		Kind:     domain.ToolSearchGLS,
		Params: domain.ToolParams{
			StartPeriod:   0.1,
			EndPeriod:     100,
			StepSize:      1e-4,
			NBestPeaks:    5,
			PeriodEpsilon: 0.01,
			SigClip:       4,
		},
	}
}

func TestLoadCheckplotSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.LoadCheckplot(context.Background(), token(testRecordID))
	if env.Status != domain.EnvelopeOK {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	if env.Result["objectid"] != "HAT-579-0025234" {
		t.Fatalf("objectid = %v", env.Result["objectid"])
	}
	if env.Result["magseries_ndet"] != 4 {
		t.Fatalf("magseries_ndet = %v", env.Result["magseries_ndet"])
	}
}

func TestLoadCheckplotIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	first := svc.LoadCheckplot(context.Background(), token(testRecordID))
	second := svc.LoadCheckplot(context.Background(), token(testRecordID))
	if !reflect.DeepEqual(first.Result, second.Result) {
		t.Fatalf("repeated loads disagree")
	}
}

func TestLoadCheckplotEmptyToken(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.LoadCheckplot(context.Background(), "")
	if env.Status != domain.EnvelopeError || env.Code != http.StatusBadRequest {
		t.Fatalf("status = %s code = %d", env.Status, env.Code)
	}
	if env.Message != "No checkplot provided to load." {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestLoadCheckplotMalformedToken(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.LoadCheckplot(context.Background(), "%%%not-base64%%%")
	if env.Status != domain.EnvelopeError || env.Code != http.StatusBadRequest {
		t.Fatalf("status = %s code = %d", env.Status, env.Code)
	}
}

func TestLoadCheckplotUnknownIdentifier(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.LoadCheckplot(context.Background(), token("checkplot-unregistered.pkl"))
	if env.Code != http.StatusNotFound {
		t.Fatalf("code = %d", env.Code)
	}
	if env.Message != "This checkplot doesn't exist." {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestLoadCheckplotMissingFile(t *testing.T) {
	svc, root := newTestService(t)
	if err := os.Remove(filepath.Join(root, testRecordID)); err != nil {
		t.Fatalf("remove record: %v", err)
	}
	env := svc.LoadCheckplot(context.Background(), token(testRecordID))
	if env.Code != http.StatusNotFound {
		t.Fatalf("code = %d", env.Code)
	}
	want := fmt.Sprintf("couldn't find checkplot %s", filepath.Join(root, testRecordID))
	if env.Message != want {
		t.Fatalf("message = %q, want %q", env.Message, want)
	}
}

func TestUpdateCheckplotReadOnlyLeavesBytesUnchanged(t *testing.T) {
	svc, root := newTestService(t, WithReadOnly(true))
	path := filepath.Join(root, testRecordID)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}

	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments: []string{"should not land"},
	})
	if env.Status != domain.EnvelopeError {
		t.Fatalf("read-only update accepted")
	}
	if env.Message != "checkplotserver is in readonly mode. no updates allowed." {
		t.Fatalf("message = %q", env.Message)
	}
	if !env.ReadOnly {
		t.Fatalf("readonly flag not echoed")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("read-only rejection modified record bytes")
	}
}

func TestUpdateCheckplotEmptyPayload(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{})
	if env.Status != domain.EnvelopeError || env.Code != http.StatusBadRequest {
		t.Fatalf("status = %s code = %d", env.Status, env.Code)
	}
	if env.Message != "did not receive a checkplot update payload" {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestUpdateCheckplotCommentsOnly(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments: []string{"confirmed RRab"},
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	changes := env.Result["changes"].(map[string]any)
	if _, ok := changes["comments"]; !ok {
		t.Fatalf("accepted changes missing comments: %v", changes)
	}
	if _, ok := changes["objectinfo"]; ok {
		t.Fatalf("unsupplied field reported as changed")
	}

	loaded := svc.LoadCheckplot(context.Background(), token(testRecordID))
	comments := loaded.Result["objectcomments"].([]string)
	if comments[0] != "confirmed RRab" {
		t.Fatalf("comments not persisted: %v", comments)
	}
	info := loaded.Result["objectinfo"].(map[string]any)
	if info["ra"] != 290.5 {
		t.Fatalf("objectinfo drifted on comments-only update: %v", info)
	}
}

func TestUpdateCheckplotSaveToPNG(t *testing.T) {
	exports := artifacts.NewMemory()
	svc, _ := newTestService(t,
		WithRenderer(stubRenderer{}),
		WithArtifactStore(exports),
	)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments:  []string{"export me"},
		SaveToPNG: true,
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	location, ok := env.Result["cpfpng"].(string)
	if !ok || location == "" || location == pngFailedMarker {
		t.Fatalf("cpfpng = %v", env.Result["cpfpng"])
	}

	stored, err := exports.List(context.Background(), "")
	if err != nil || len(stored) != 1 {
		t.Fatalf("artifact not stored: %v %v", stored, err)
	}
	if stored[0].ContentType != "image/png" {
		t.Fatalf("content type = %q", stored[0].ContentType)
	}
}

func TestUpdateCheckplotPNGFailureKeepsMerge(t *testing.T) {
	svc, _ := newTestService(t,
		WithRenderer(stubRenderer{err: errors.New("no display")}),
		WithArtifactStore(artifacts.NewMemory()),
	)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments:  []string{"merge survives failed render"},
		SaveToPNG: true,
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("render failure must not fail the update: %q", env.Message)
	}
	if env.Result["cpfpng"] != pngFailedMarker {
		t.Fatalf("cpfpng = %v, want failure marker", env.Result["cpfpng"])
	}

	loaded := svc.LoadCheckplot(context.Background(), token(testRecordID))
	comments := loaded.Result["objectcomments"].([]string)
	if comments[0] != "merge survives failed render" {
		t.Fatalf("merge rolled back on render failure")
	}
}

func TestUpdateCheckplotDispatchesMergeToPool(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments: []string{"dispatched"},
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	if svc.Pool().Submitted() != 1 {
		t.Fatalf("submitted = %d, want exactly one pool task for the merge", svc.Pool().Submitted())
	}
}

func TestUpdateCheckplotSaveToPNGDispatchesRenderToPool(t *testing.T) {
	svc, _ := newTestService(t,
		WithRenderer(stubRenderer{}),
		WithArtifactStore(artifacts.NewMemory()),
	)
	env := svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments:  []string{"dispatched render"},
		SaveToPNG: true,
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	if svc.Pool().Submitted() != 2 {
		t.Fatalf("submitted = %d, want merge plus render", svc.Pool().Submitted())
	}
}

func TestUpdateCheckplotRejectionsConsumeNoPoolSlot(t *testing.T) {
	svc, _ := newTestService(t, WithReadOnly(true))
	svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{
		Comments: []string{"rejected"},
	})
	if svc.Pool().Submitted() != 0 {
		t.Fatalf("read-only rejection consumed %d pool submissions", svc.Pool().Submitted())
	}

	svc, _ = newTestService(t)
	svc.UpdateCheckplot(context.Background(), token(testRecordID), UpdatePayload{})
	if svc.Pool().Submitted() != 0 {
		t.Fatalf("empty payload consumed %d pool submissions", svc.Pool().Submitted())
	}
}

func TestProjectIndex(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.Project(context.Background())
	if env.Status != domain.EnvelopeOK {
		t.Fatalf("status = %s", env.Status)
	}
	if env.Result["nfiles"] != 1 {
		t.Fatalf("nfiles = %v", env.Result["nfiles"])
	}
	ids := env.Result["checkplots"].([]string)
	if ids[0] != testRecordID {
		t.Fatalf("checkplots = %v", ids)
	}
}

func TestReviewObject(t *testing.T) {
	svc, _ := newTestService(t)
	annotation := json.RawMessage(`{"vartype":"EB","comments":"confirmed"}`)
	env := svc.ReviewObject(context.Background(), "HAT-579-0025234", annotation)
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	want := "wrote all changes to the checkplot filelist from the frontend for object: HAT-579-0025234"
	if env.Message != want {
		t.Fatalf("message = %q", env.Message)
	}

	project := svc.Project(context.Background())
	reviewed := project.Result["reviewed"].(map[string]any)
	if _, ok := reviewed["HAT-579-0025234"]; !ok {
		t.Fatalf("annotation not visible in project index")
	}
}

func TestReviewObjectRejections(t *testing.T) {
	svc, _ := newTestService(t, WithReadOnly(true))
	env := svc.ReviewObject(context.Background(), "HAT-1", json.RawMessage(`{}`))
	if env.Message != "checkplotserver is in readonly mode. no updates allowed." {
		t.Fatalf("read-only review accepted: %q", env.Message)
	}

	svc, _ = newTestService(t)
	env = svc.ReviewObject(context.Background(), "", json.RawMessage(`{}`))
	if env.Code != http.StatusBadRequest {
		t.Fatalf("empty object id code = %d", env.Code)
	}
	env = svc.ReviewObject(context.Background(), "HAT-1", json.RawMessage(`{"broken`))
	if env.Code != http.StatusBadRequest {
		t.Fatalf("invalid annotation code = %d", env.Code)
	}
}

func TestRunToolPeriodSearch(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.RunTool(context.Background(), validSearchInvocation(token(testRecordID)))
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	if env.Result["objectid"] != "HAT-579-0025234" {
		t.Fatalf("objectid = %v", env.Result["objectid"])
	}
	gls, ok := env.Result["gls"].(map[string]any)
	if !ok {
		t.Fatalf("gls bundle missing: %v", env.Result)
	}
	if gls["bestperiod"] != 0.5 {
		t.Fatalf("bestperiod = %v", gls["bestperiod"])
	}
	if svc.Pool().Submitted() != 1 {
		t.Fatalf("submitted = %d, want exactly one pool task", svc.Pool().Submitted())
	}
}

func TestRunToolRejectedParamsConsumeNoPoolSlot(t *testing.T) {
	svc, _ := newTestService(t)
	inv := validSearchInvocation(token(testRecordID))
	inv.Params.StartPeriod = -1

	env := svc.RunTool(context.Background(), inv)
	if env.Status != domain.EnvelopeError || env.Code != http.StatusBadRequest {
		t.Fatalf("status = %s code = %d", env.Status, env.Code)
	}
	if svc.Pool().Submitted() != 0 {
		t.Fatalf("rejected invocation consumed %d pool submissions", svc.Pool().Submitted())
	}
}

func TestRunToolUnknownTargetConsumesNoPoolSlot(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.RunTool(context.Background(), validSearchInvocation(token("checkplot-unregistered.pkl")))
	if env.Code != http.StatusNotFound {
		t.Fatalf("code = %d", env.Code)
	}
	if svc.Pool().Submitted() != 0 {
		t.Fatalf("unknown target consumed %d pool submissions", svc.Pool().Submitted())
	}
}

func TestRunToolTransform(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.RunTool(context.Background(), domain.ToolInvocation{
		TargetID: token(testRecordID),
		Kind:     domain.ToolCutTime,
		Params:   domain.ToolParams{TimeMin: 101, TimeMax: 103},
	})
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	series := env.Result["magseries"].(map[string]any)
	if series["ndet"] != 3 {
		t.Fatalf("ndet = %v", series["ndet"])
	}
}

func TestConfirmToolPersistsBundle(t *testing.T) {
	svc, _ := newTestService(t)
	bundle := domain.PeriodogramBundle{
		BestPeriods: []float64{0.5, 1.0, 0.25},
		BestPeriod:  0.5,
		Periodogram: []byte("pgram"),
		PhaseFolded: []domain.PhasedLightCurve{
			{Period: 0.5, Epoch: 100}, {Period: 1.0, Epoch: 100}, {Period: 0.25, Epoch: 100},
		},
	}
	env := svc.ConfirmTool(context.Background(), token(testRecordID), domain.MethodGLS, bundle)
	if env.Status != domain.EnvelopeSuccess {
		t.Fatalf("status = %s message = %q", env.Status, env.Message)
	}
	if svc.Pool().Submitted() != 1 {
		t.Fatalf("submitted = %d, want exactly one pool task for the merge", svc.Pool().Submitted())
	}

	loaded := svc.LoadCheckplot(context.Background(), token(testRecordID))
	if _, ok := loaded.Result["gls"]; !ok {
		t.Fatalf("confirmed bundle not persisted")
	}
}

func TestConfirmToolRejectsMalformedBundle(t *testing.T) {
	svc, _ := newTestService(t)
	bundle := domain.PeriodogramBundle{
		BestPeriods: []float64{0.5, 1.0},
		BestPeriod:  0.5,
		PhaseFolded: []domain.PhasedLightCurve{{Period: 0.5}, {Period: 1.0}},
	}
	env := svc.ConfirmTool(context.Background(), token(testRecordID), domain.MethodGLS, bundle)
	if env.Code != http.StatusBadRequest {
		t.Fatalf("malformed bundle accepted: %d %q", env.Code, env.Message)
	}
}
