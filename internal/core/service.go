// Package core hosts the checkplot service: request validation, worker-pool
// dispatch of analysis work, envelope assembly, and the observability seam
// every operation reports through.
package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"checkplotcore/internal/artifacts"
	"checkplotcore/internal/infra/manifest"
	"checkplotcore/internal/infra/records"
	"checkplotcore/internal/tools"
	"checkplotcore/pkg/domain"
)

// UpdatePayload carries the caller-editable record fields of an update
// request. Nil fields mean "leave unchanged"; SaveToPNG additionally exports
// the merged record as a PNG artifact.
type UpdatePayload struct {
	ObjectInfo map[string]any `json:"objectinfo,omitempty"`
	VarInfo    map[string]any `json:"varinfo,omitempty"`
	Comments   []string       `json:"comments,omitempty"`
	SaveToPNG  bool           `json:"savetopng,omitempty"`
}

// pngFailedMarker is the literal failure marker the frontend matches on when
// an export render fails. The update itself is still committed.
const pngFailedMarker = "png making failed"

// Service is the transport-less checkplot core: every operation takes
// validated Go values and returns a response envelope. Raw errors never
// escape; they are converted to error envelopes at this boundary.
type Service struct {
	manifest  manifest.Store
	records   *records.Store
	runner    *tools.Runner
	pool      *WorkerPool
	assembler ResponseAssembler

	renderer domain.Renderer
	exports  artifacts.Store

	readOnly bool
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
}

// Option customizes Service construction.
type Option func(*Service)

// WithLogger installs a structured logger. Nil restores the no-op default.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l == nil {
			l = noopLogger{}
		}
		s.logger = l
	}
}

// WithClock overrides the time source, used by tests for deterministic
// envelope timestamps.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c == nil {
			c = systemClock{}
		}
		s.clock = c
	}
}

// WithMetricsRecorder installs a metrics sink for per-operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer installs a tracer opening one span per operation.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithAuditRecorder installs an audit sink receiving one entry per completed
// operation.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithReadOnly switches the service into read-only mode: every mutating
// operation is rejected before touching storage.
func WithReadOnly(readOnly bool) Option {
	return func(s *Service) { s.readOnly = readOnly }
}

// WithRenderer installs the record-to-PNG renderer used by savetopng
// requests.
func WithRenderer(r domain.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithArtifactStore installs the store that receives rendered PNG exports.
func WithArtifactStore(store artifacts.Store) Option {
	return func(s *Service) { s.exports = store }
}

// WithPool replaces the worker pool, letting callers size it or bound task
// runtime.
func WithPool(p *WorkerPool) Option {
	return func(s *Service) {
		if p != nil {
			s.pool = p
		}
	}
}

// NewService constructs the service over its collaborator set. The manifest
// and record stores are required; the tool runner may be nil when tool
// dispatch is not needed.
func NewService(m manifest.Store, r *records.Store, runner *tools.Runner, opts ...Option) (*Service, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest store required")
	}
	if r == nil {
		return nil, fmt.Errorf("record store required")
	}
	s := &Service{
		manifest: m,
		records:  r,
		runner:   runner,
		pool:     NewWorkerPool(DefaultPoolSize, 0),
		logger:   noopLogger{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.assembler = ResponseAssembler{ReadOnly: s.readOnly}
	return s, nil
}

// ReadOnly reports whether mutating operations are rejected.
func (s *Service) ReadOnly() bool { return s.readOnly }

// Pool exposes the worker pool, primarily for submission-count assertions.
func (s *Service) Pool() *WorkerPool { return s.pool }

// Close drains the worker pool. The audit log backend is owned by whoever
// opened it and is closed there.
func (s *Service) Close() {
	s.pool.Close()
}

// LoadCheckplot resolves the base64 identifier token and returns the full
// record envelope. Decoding the record file runs on the worker pool.
func (s *Service) LoadCheckplot(ctx context.Context, token string) domain.Envelope {
	finish := s.instrument(ctx, "load_checkplot", token)

	id, err := s.decodeToken(token)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	fut, err := s.pool.Submit(ctx, func(taskCtx context.Context) (any, error) {
		return s.records.Load(taskCtx, id)
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrBackendFailure, err)
		return finish(s.assembler.Error(err), err)
	}
	result, err := fut.Wait(ctx)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	return finish(s.assembler.Load(result.(domain.Record)), nil)
}

// UpdateCheckplot merges the payload's editable fields into the stored
// record. In read-only mode the request is rejected before any storage
// access. Validation happens on the calling goroutine; the merge itself is
// one pool submission. When SaveToPNG is set the merged record is rendered
// and written to the artifact store as a second pool submission; a failed
// render reports the literal failure marker but does not roll back the
// merge.
func (s *Service) UpdateCheckplot(ctx context.Context, token string, payload UpdatePayload) domain.Envelope {
	finish := s.instrument(ctx, "update_checkplot", token)

	if s.readOnly {
		return finish(s.assembler.Error(domain.ErrReadOnly), domain.ErrReadOnly)
	}
	id, err := s.decodeToken(token)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	patch := domain.RecordPatch{
		ObjectInfo: payload.ObjectInfo,
		VarInfo:    payload.VarInfo,
		Comments:   payload.Comments,
	}
	if patch.Empty() {
		err := domain.WithMessage(domain.ErrInvalidInput, "did not receive a checkplot update payload")
		return finish(s.assembler.Error(err), err)
	}

	merged, err := s.dispatchSave(ctx, id, patch)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}

	changes := make(map[string]any, 3)
	if payload.ObjectInfo != nil {
		changes["objectinfo"] = payload.ObjectInfo
	}
	if payload.VarInfo != nil {
		changes["varinfo"] = payload.VarInfo
	}
	if payload.Comments != nil {
		changes["comments"] = payload.Comments
	}

	pngLocation := ""
	if payload.SaveToPNG {
		pngLocation = s.dispatchPNGExport(ctx, id, merged)
	}
	return finish(s.assembler.Update(s.records.Path(id), s.clock.Now(), changes, pngLocation), nil)
}

// dispatchSave runs the record merge on the worker pool so the calling
// goroutine never does the decode-merge-encode work itself.
func (s *Service) dispatchSave(ctx context.Context, id string, patch domain.RecordPatch) (domain.Record, error) {
	fut, err := s.pool.Submit(ctx, func(taskCtx context.Context) (any, error) {
		return s.records.Save(taskCtx, id, patch)
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %w", domain.ErrBackendFailure, err)
	}
	result, err := fut.Wait(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	return result.(domain.Record), nil
}

// dispatchPNGExport renders the merged record on the worker pool. Dispatch
// failures report the failure marker the same way a failed render does; the
// accepted merge is never rolled back.
func (s *Service) dispatchPNGExport(ctx context.Context, id string, record domain.Record) string {
	fut, err := s.pool.Submit(ctx, func(taskCtx context.Context) (any, error) {
		return s.exportPNG(taskCtx, id, record), nil
	})
	if err != nil {
		s.logger.Error("png export dispatch failed", "checkplot", id, "error", err)
		return pngFailedMarker
	}
	result, err := fut.Wait(ctx)
	if err != nil {
		s.logger.Error("png export failed", "checkplot", id, "error", err)
		return pngFailedMarker
	}
	return result.(string)
}

// exportPNG renders the record and writes the image through the artifact
// store, returning its location or the failure marker.
func (s *Service) exportPNG(ctx context.Context, id string, record domain.Record) string {
	if s.renderer == nil || s.exports == nil {
		s.logger.Warn("png export requested without renderer or artifact store", "checkplot", id)
		return pngFailedMarker
	}
	img, err := s.renderer.Render(ctx, record)
	if err != nil {
		s.logger.Error("png render failed", "checkplot", id, "error", err)
		return pngFailedMarker
	}
	key := pngKey(id)
	info, err := s.exports.Put(ctx, key, bytes.NewReader(img), "image/png")
	if err != nil {
		s.logger.Error("png artifact write failed", "checkplot", id, "key", key, "error", err)
		return pngFailedMarker
	}
	return info.Location
}

// pngKey maps a record identifier to its export artifact key.
func pngKey(id string) string {
	if i := strings.LastIndex(id, "."); i > 0 {
		id = id[:i]
	}
	return id + ".png"
}

// Project returns the project index envelope: the ordered record identifiers
// and current review annotations.
func (s *Service) Project(ctx context.Context) domain.Envelope {
	finish := s.instrument(ctx, "project_index", "")
	return finish(s.assembler.Project(s.manifest.Snapshot()), nil)
}

// ReviewObject records a review annotation for objectID and synchronously
// rewrites the manifest file. The write happens on the calling goroutine: the
// manifest is small and the caller needs the durable outcome before the
// envelope is assembled.
func (s *Service) ReviewObject(ctx context.Context, objectID string, annotation json.RawMessage) domain.Envelope {
	finish := s.instrument(ctx, "review_object", objectID)

	if s.readOnly {
		return finish(s.assembler.Error(domain.ErrReadOnly), domain.ErrReadOnly)
	}
	if objectID == "" {
		err := fmt.Errorf("%w: no object ID provided", domain.ErrInvalidInput)
		return finish(s.assembler.Error(err), err)
	}
	if err := s.manifest.RecordReview(ctx, objectID, annotation); err != nil {
		return finish(s.assembler.Error(err), err)
	}

	var changes any
	if err := json.Unmarshal(annotation, &changes); err != nil {
		changes = string(annotation)
	}
	return finish(s.assembler.Review(objectID, changes), nil)
}

// toolOutcome is the worker-pool result of one tool run: the loaded record
// (for envelope assembly) plus the tool output.
type toolOutcome struct {
	objectID string
	result   tools.Result
}

// RunTool validates and executes one tool invocation. Identifier resolution
// and parameter validation happen on the calling goroutine so a rejected
// invocation never consumes a pool slot; an accepted invocation makes exactly
// one pool submission covering the record load and the tool run. Results are
// returned, never persisted; ConfirmTool commits them.
func (s *Service) RunTool(ctx context.Context, inv domain.ToolInvocation) domain.Envelope {
	finish := s.instrument(ctx, "run_tool", inv.TargetID)

	id, err := s.decodeToken(inv.TargetID)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	inv.TargetID = id
	if err := inv.Validate(); err != nil {
		return finish(s.assembler.Error(err), err)
	}
	if s.runner == nil {
		err := fmt.Errorf("%w: no tool runner configured", domain.ErrBackendFailure)
		return finish(s.assembler.Error(err), err)
	}
	if _, err := s.records.Resolve(id); err != nil {
		return finish(s.assembler.Error(err), err)
	}

	fut, err := s.pool.Submit(ctx, func(taskCtx context.Context) (any, error) {
		record, err := s.records.Load(taskCtx, id)
		if err != nil {
			return nil, err
		}
		res, err := s.runner.Run(taskCtx, inv, record.TimeSeries)
		if err != nil {
			return nil, err
		}
		return toolOutcome{objectID: record.ObjectID, result: res}, nil
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrBackendFailure, err)
		return finish(s.assembler.Error(err), err)
	}
	result, err := fut.Wait(ctx)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	out := result.(toolOutcome)
	return finish(s.assembler.Tool(out.objectID, inv, out.result), nil)
}

// ConfirmTool persists a previously returned periodogram bundle into the
// record's slot for the given method through the normal merge path. Like
// UpdateCheckplot, the merge is one pool submission.
func (s *Service) ConfirmTool(ctx context.Context, token string, method domain.Method, bundle domain.PeriodogramBundle) domain.Envelope {
	finish := s.instrument(ctx, "confirm_tool", token)

	if s.readOnly {
		return finish(s.assembler.Error(domain.ErrReadOnly), domain.ErrReadOnly)
	}
	id, err := s.decodeToken(token)
	if err != nil {
		return finish(s.assembler.Error(err), err)
	}
	if _, err := s.dispatchSave(ctx, id, domain.RecordPatch{Method: method, Bundle: &bundle}); err != nil {
		return finish(s.assembler.Error(err), err)
	}
	changes := map[string]any{string(method): "saved"}
	return finish(s.assembler.Update(s.records.Path(id), s.clock.Now(), changes, ""), nil)
}

// decodeToken converts the opaque base64 identifier token from the wire into
// a manifest identifier. The empty-token message matches the original wire
// protocol; malformed base64 is invalid input.
func (s *Service) decodeToken(token string) (string, error) {
	if token == "" {
		return "", domain.WithMessage(domain.ErrInvalidInput, "No checkplot provided to load.")
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable checkplot token", domain.ErrInvalidInput)
	}
	if len(raw) == 0 {
		return "", domain.WithMessage(domain.ErrInvalidInput, "No checkplot provided to load.")
	}
	return string(raw), nil
}

// instrument opens the per-operation observability scope: one trace span,
// one metrics observation, one audit entry, one log line. The returned
// finish function threads the envelope through unchanged.
func (s *Service) instrument(ctx context.Context, operation, target string) func(domain.Envelope, error) domain.Envelope {
	start := s.clock.Now()
	var span TraceSpan
	if s.tracer != nil {
		_, span = s.tracer.Start(ctx, operation)
	}
	return func(env domain.Envelope, err error) domain.Envelope {
		elapsed := s.clock.Now().Sub(start)
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, elapsed)
		}
		if s.audit != nil {
			status := AuditStatusSuccess
			detail := env.Message
			if err != nil {
				status = AuditStatusError
				detail = err.Error()
			}
			s.audit.Record(ctx, AuditEntry{
				Operation: operation,
				Target:    target,
				Status:    status,
				Detail:    detail,
				At:        s.clock.Now(),
			})
		}
		if err != nil {
			s.logger.Warn("operation failed", "operation", operation, "target", target, "error", err)
		} else {
			s.logger.Debug("operation completed", "operation", operation, "target", target, "elapsed", elapsed)
		}
		return env
	}
}
