package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/audit"
	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/editmode"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
	"github.com/platinummonkey/nexus-mcp/pkg/upstream"
)

// DefaultClusterName is used when a call names no cluster
const DefaultClusterName = "default"

// EditGate is the global write switch
type EditGate interface {
	Check(ctx context.Context, method string) error
}

// Authorizer performs the per-call authorization check
type Authorizer interface {
	Authorize(ctx context.Context, p authz.Principal, op catalog.Operation, args map[string]interface{}) (*authz.Decision, error)
}

// ClusterResolver finds the fallback cluster by name
type ClusterResolver interface {
	ClusterByName(ctx context.Context, name string) (*authz.Cluster, error)
}

// PathResolver prefixes operation paths with their namespace base path
type PathResolver interface {
	ResolvePath(namespace, template, path string) string
}

// Dependencies wires a Dispatcher
type Dependencies struct {
	Gate       EditGate
	Authorizer Authorizer
	Clusters   ClusterResolver
	Pool       *upstream.Pool
	Paths      PathResolver
	Recorder   audit.Recorder
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Config tunes a Dispatcher
type Config struct {
	DefaultCluster string
}

// Call is one tool invocation
type Call struct {
	Principal authz.Principal
	Operation catalog.Operation
	Args      map[string]interface{}
	ClientIP  string
}

// Dispatcher turns tool calls into upstream REST requests
type Dispatcher struct {
	deps           Dependencies
	defaultCluster string
	logger         *observability.Logger
}

// New creates a dispatcher
func New(deps Dependencies, cfg Config) (*Dispatcher, error) {
	if deps.Gate == nil || deps.Authorizer == nil || deps.Pool == nil {
		return nil, fmt.Errorf("edit gate, authorizer and upstream pool are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if cfg.DefaultCluster == "" {
		cfg.DefaultCluster = DefaultClusterName
	}
	return &Dispatcher{
		deps:           deps,
		defaultCluster: cfg.DefaultCluster,
		logger:         deps.Logger.WithField("component", "dispatcher"),
	}, nil
}

// Dispatch runs one call to completion and writes exactly one audit record.
// The call is detached from ctx cancellation so a client disconnect never
// leaves it half-finished or unaudited.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) *Result {
	ctx = context.WithoutCancel(ctx)
	op := call.Operation
	start := time.Now()

	ctx, span := observability.Tracer().Start(ctx, "dispatch."+op.ToolName(),
		trace.WithAttributes(
			attribute.String("mcp.operation", op.Name()),
			attribute.String("http.method", strings.ToUpper(op.Method)),
		))
	defer span.End()

	rec := &audit.Record{
		OperationID: op.Name(),
		HTTPMethod:  strings.ToUpper(op.Method),
		Path:        d.resolvePath(op, op.Path),
		ClientIP:    call.ClientIP,
	}
	if call.Principal != nil && call.Principal.UserID() != 0 {
		id := call.Principal.UserID()
		rec.UserID = &id
	}

	result := d.run(ctx, call, rec)
	d.finish(ctx, span, call, rec, result, time.Since(start))
	return result
}

func (d *Dispatcher) run(ctx context.Context, call Call, rec *audit.Record) *Result {
	op := call.Operation
	p := call.Principal
	if p == nil {
		return d.deny(apierr.Permission(apierr.CodeUnauthenticated, "Authentication required"))
	}

	prepared, err := Prepare(op, call.Args)
	if err != nil {
		e, _ := apierr.As(err)
		return &Result{Err: e, Outcome: OutcomeInvalid}
	}
	rec.Path = d.resolvePath(op, prepared.Path)
	if prepared.Body != nil {
		if data, err := json.Marshal(prepared.Body); err == nil {
			rec.RequestBody = data
		}
	}

	if err := d.deps.Gate.Check(ctx, prepared.Method); err != nil {
		return d.deny(asPermission(err))
	}

	if editmode.IsWrite(prepared.Method) && !p.CanEdit() {
		return d.deny(apierr.Newf(apierr.TypePermission, apierr.CodeEditModeRequired,
			"Permission denied: the roles of user %s do not allow %s operations", p.Username(), prepared.Method).
			WithDetail("edit_mode_required", true))
	}

	decision, err := d.deps.Authorizer.Authorize(ctx, p, op, call.Args)
	if err != nil {
		return d.deny(apierr.Wrap(apierr.TypePermission, apierr.CodeClusterNotPermitted, err,
			"Permission denied: unable to verify cluster access"))
	}
	if decision.Cluster != nil {
		id := decision.Cluster.ID
		rec.ClusterID = &id
	}
	if !decision.Allowed {
		return d.deny(apierr.Permission(string(decision.Reason), decision.Message))
	}

	cluster := decision.Cluster
	if cluster == nil {
		cluster, err = d.fallbackCluster(ctx)
		if err != nil {
			return d.deny(apierr.Wrap(apierr.TypePermission, apierr.CodeClusterNotFound, err,
				fmt.Sprintf("Cluster not found: %s", d.defaultCluster)))
		}
		id := cluster.ID
		rec.ClusterID = &id
	}

	result := &Result{Cluster: cluster.Name}

	client, err := d.deps.Pool.Get(cluster.Name, upstream.Credentials{
		URL:       cluster.URL,
		Username:  cluster.Username,
		Password:  cluster.Password,
		VerifySSL: cluster.VerifySSL,
	})
	if err != nil {
		result.Err = apierr.Upstream(0, fmt.Sprintf("Invalid configuration for cluster %s: %v", cluster.Name, err), err)
		result.Outcome = OutcomeUnreachable
		return result
	}

	resp, err := client.Do(ctx, upstream.Request{
		Method: prepared.Method,
		Path:   rec.Path,
		Query:  prepared.Query,
		Body:   prepared.Body,
	})
	if resp != nil {
		result.Status = resp.StatusCode
		status := resp.StatusCode
		rec.ResponseStatus = &status
		decoded := upstream.Decode(resp)
		if data, mErr := json.Marshal(decoded); mErr == nil {
			rec.ResponseBody = data
		}
		if err == nil {
			result.Data = decoded
		}
	}

	if err != nil {
		e, ok := apierr.As(err)
		if !ok {
			e = apierr.Upstream(result.Status, err.Error(), err)
		}
		result.Err = e
		result.Outcome = OutcomeUpstream
		if result.Status == 0 {
			result.Outcome = OutcomeUnreachable
		}
		return result
	}

	result.Outcome = OutcomeSuccess
	return result
}

func (d *Dispatcher) fallbackCluster(ctx context.Context) (*authz.Cluster, error) {
	if d.deps.Clusters == nil {
		return nil, authz.ErrClusterNotFound
	}
	return d.deps.Clusters.ClusterByName(ctx, d.defaultCluster)
}

func (d *Dispatcher) deny(e *apierr.Error) *Result {
	if d.deps.Metrics != nil {
		d.deps.Metrics.PermissionDenials.WithLabelValues(e.Code).Inc()
	}
	return &Result{Err: e, Outcome: OutcomeDenied}
}

// finish writes the audit record, then metrics, span status and the log line
func (d *Dispatcher) finish(ctx context.Context, span trace.Span, call Call, rec *audit.Record, result *Result, elapsed time.Duration) {
	if result.Err != nil {
		rec.ErrorMessage = result.Err.Error()
	}

	if err := d.deps.Recorder.Record(ctx, rec); err != nil {
		if d.deps.Metrics != nil {
			d.deps.Metrics.AuditWriteErrors.Inc()
		}
		auditErr := apierr.Wrap(apierr.TypeAuditWrite, apierr.CodeAuditWriteFailed, err, "failed to write audit record")
		d.logger.WithError(auditErr).WithField("operation", rec.OperationID).Error("audit write failed")
	} else {
		result.AuditID = rec.ID
	}

	op := call.Operation
	method := strings.ToUpper(op.Method)
	if d.deps.Metrics != nil {
		d.deps.Metrics.DispatchTotal.WithLabelValues(op.Namespace, method, string(result.Outcome)).Inc()
		d.deps.Metrics.DispatchDuration.WithLabelValues(op.Namespace, method).Observe(elapsed.Seconds())
	}

	span.SetAttributes(attribute.String("mcp.outcome", string(result.Outcome)))
	if result.Status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", result.Status))
	}
	if result.Err != nil {
		span.SetStatus(codes.Error, result.Err.Code)
	}

	log := d.logger.WithFields(map[string]interface{}{
		"operation":   rec.OperationID,
		"method":      rec.HTTPMethod,
		"path":        rec.Path,
		"outcome":     result.Outcome,
		"duration_ms": elapsed.Milliseconds(),
	})
	if call.Principal != nil {
		log = log.WithField("principal", call.Principal.Username())
	}
	if result.Cluster != "" {
		log = log.WithField("cluster", result.Cluster)
	}

	switch result.Outcome {
	case OutcomeSuccess:
		log.WithField("status", result.Status).Info("dispatch completed")
	case OutcomeDenied, OutcomeInvalid:
		log.WithField("code", result.Err.Code).Warn(result.Err.Error())
	default:
		log.WithError(result.Err).WithField("status", result.Status).Error("dispatch failed")
	}
}

func (d *Dispatcher) resolvePath(op catalog.Operation, path string) string {
	if d.deps.Paths == nil {
		return path
	}
	return d.deps.Paths.ResolvePath(op.Namespace, op.Path, path)
}

// asPermission keeps typed gate errors and fails closed on anything else
func asPermission(err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	return apierr.Wrap(apierr.TypePermission, apierr.CodeEditModeRequired, err, err.Error())
}
