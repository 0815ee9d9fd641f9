// Package executor dispatches tool calls to worker servers through an
// injected transport function, applying schema validation, rate limiting,
// retry with backoff, idempotency, confirmation gating, scatter-gather
// fan-out, and bundle orchestration. Grounded on the teacher's
// toolregistry/executor package: a Client-style transport interface plus a
// functional-options constructor.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaleyeah/agentkernel/registry"
	"github.com/shaleyeah/agentkernel/resilience"
	"github.com/shaleyeah/agentkernel/shaper"
	"github.com/shaleyeah/agentkernel/telemetry"
	"github.com/shaleyeah/agentkernel/toolerr"
	"github.com/shaleyeah/agentkernel/types"
)

// TransportFunc dispatches a single tool call to its worker and returns the
// raw decoded payload or an error. The kernel treats the wire protocol
// (MCP, direct process call, HTTP) as entirely opaque behind this function.
type TransportFunc func(ctx context.Context, req types.ToolRequest) (map[string]any, error)

// Executor dispatches tool calls against a registry-resolved set of
// servers via an injected TransportFunc.
type Executor struct {
	registry  *registry.Registry
	transport TransportFunc

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	backoff resilience.BackoffConfig
	timeout time.Duration

	perServerRPS float64
	limiters     map[string]*rate.Limiter

	schemaEnabled bool

	gate *confirmationGate

	idempotencyTTL time.Duration
	seen           *idempotencyCache

	contextProvider func(sessionID string) (types.InjectedContext, bool)
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithLogger sets the executor's logger. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithMetrics sets the executor's metrics recorder. Defaults to no-op.
func WithMetrics(m telemetry.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithTracer sets the executor's tracer. Defaults to no-op.
func WithTracer(t telemetry.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// WithBackoff overrides the retry backoff configuration.
func WithBackoff(cfg resilience.BackoffConfig) Option {
	return func(e *Executor) { e.backoff = cfg }
}

// WithTimeout sets the per-call timeout applied to every transport
// invocation, including retries.
func WithTimeout(d time.Duration) Option { return func(e *Executor) { e.timeout = d } }

// WithPerServerRPS enables a token-bucket rate limiter per worker server.
// A value of 0 disables limiting.
func WithPerServerRPS(rps float64) Option {
	return func(e *Executor) { e.perServerRPS = rps }
}

// WithSchemaValidation enables JSON Schema validation of request arguments
// before dispatch, using the schema attached to each tool's descriptor.
func WithSchemaValidation(enabled bool) Option {
	return func(e *Executor) { e.schemaEnabled = enabled }
}

// WithIdempotencyTTL sets how long a completed idempotency key suppresses
// duplicate dispatch. Zero disables idempotency caching.
func WithIdempotencyTTL(d time.Duration) Option {
	return func(e *Executor) { e.idempotencyTTL = d }
}

// WithContextProvider sets the function the executor uses to resolve a
// request's session-scoped injected context before dispatch. Requests with
// no SessionID, or a SessionID the provider doesn't recognize, dispatch
// without a Context.
func WithContextProvider(f func(sessionID string) (types.InjectedContext, bool)) Option {
	return func(e *Executor) { e.contextProvider = f }
}

// New constructs an Executor bound to reg for resolution and transport for
// dispatch.
func New(reg *registry.Registry, transport TransportFunc, opts ...Option) *Executor {
	e := &Executor{
		registry:       reg,
		transport:      transport,
		logger:         telemetry.NewNoopLogger(),
		metrics:        telemetry.NewNoopMetrics(),
		tracer:         telemetry.NewNoopTracer(),
		backoff:        resilience.DefaultBackoffConfig(),
		timeout:        30 * time.Second,
		limiters:       make(map[string]*rate.Limiter),
		gate:           newConfirmationGate(),
		idempotencyTTL: 5 * time.Minute,
		seen:           newIdempotencyCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches a single tool call, applying schema validation, rate
// limiting, timeout, and retry with backoff. It returns a fully shaped
// AgentOSResponse regardless of success or failure.
func (e *Executor) Execute(ctx context.Context, req types.ToolRequest) *types.AgentOSResponse {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "executor.Execute")
	defer span.End()

	tool, ok := e.registry.GetTool(req.Tool)
	if !ok {
		return e.errorResponse(req, toolerr.Errorf("unknown tool: %s", req.Tool), "", 0, 0)
	}
	if e.transport == nil {
		return e.errorResponse(req, toolerr.New("invalid executor state: no transport connected"), tool.Server, 0, 0)
	}

	if req.Context == nil && req.SessionID != "" && e.contextProvider != nil {
		if injected, ok := e.contextProvider(req.SessionID); ok {
			req.Context = &injected
		}
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = GenerateIdempotencyKey(req.Tool, req.Args, req.SessionID)
	}
	if e.idempotencyTTL > 0 {
		if cached, ok := e.seen.Get(req.IdempotencyKey); ok {
			return cached
		}
	}

	if e.schemaEnabled && len(tool.Schema) > 0 {
		if err := ValidateArgs(tool.Schema, req.Args); err != nil {
			resp := e.errorResponse(req, toolerr.NewWithCause("argument validation failed", err), tool.Server, 0, 0)
			resp.Error.Reason = err.Error()
			return resp
		}
	}

	if e.perServerRPS > 0 {
		limiter := e.limiterFor(tool.Server)
		if err := limiter.Wait(ctx); err != nil {
			return e.errorResponse(req, toolerr.NewWithCause("rate limit wait interrupted", err), tool.Server, 0, 0)
		}
	}

	var raw map[string]any
	attempts, totalDelay, err := resilience.Do(ctx, e.backoff, e.shouldRetry, func(callErr error) time.Duration {
		return resilience.BaseDelayFor(callErr.Error(), e.backoff.BaseDelay)
	}, func(c context.Context) error {
		callCtx, cancel := context.WithTimeout(c, e.timeout)
		defer cancel()
		var callErr error
		raw, callErr = e.transport(callCtx, req)
		return callErr
	})

	elapsed := time.Since(start)
	e.metrics.RecordTimer("executor.execute.duration", elapsed, "tool", req.Tool)

	if err != nil {
		e.metrics.IncCounter("executor.execute.failure", 1, "tool", req.Tool)
		resp := e.errorResponse(req, toolerr.FromError(err), tool.Server, attempts, totalDelay)
		return resp
	}

	e.metrics.IncCounter("executor.execute.success", 1, "tool", req.Tool)
	resp := shaper.Shape(raw, shaper.Options{DetailLevel: req.DetailLevel, ToolName: req.Tool, Server: tool.Server})
	resp.Metadata = types.ResponseMetadata{
		Server:              tool.Server,
		ExecutionMs:         elapsed.Milliseconds(),
		Timestamp:           time.Now().UTC(),
		IdempotencyKey:      req.IdempotencyKey,
		RetryAttempts:       attempts,
		TotalRetryDelayMs:   totalDelay.Milliseconds(),
	}

	if e.idempotencyTTL > 0 {
		e.seen.Put(req.IdempotencyKey, resp, e.idempotencyTTL)
	}
	return resp
}

func (e *Executor) shouldRetry(err error) bool {
	detail := resilience.ClassifyError(err.Error())
	return detail == types.ErrorRetryable
}

func (e *Executor) errorResponse(req types.ToolRequest, err error, server string, attempts int, totalDelay time.Duration) *types.AgentOSResponse {
	detail := resilience.ClassifyErrorDetail(req.Tool, err.Error(), "")
	return &types.AgentOSResponse{
		Success:      false,
		Summary:      fmt.Sprintf("%s failed: %s", req.Tool, err.Error()),
		DetailLevel:  req.DetailLevel,
		Completeness: 0,
		Error:        detail,
		Metadata: types.ResponseMetadata{
			Server:            server,
			Timestamp:         time.Now().UTC(),
			IdempotencyKey:    req.IdempotencyKey,
			RetryAttempts:     attempts,
			TotalRetryDelayMs: totalDelay.Milliseconds(),
		},
	}
}

func (e *Executor) limiterFor(server string) *rate.Limiter {
	if l, ok := e.limiters[server]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(e.perServerRPS), int(e.perServerRPS)+1)
	e.limiters[server] = l
	return l
}

// GenerateIdempotencyKey derives a stable key from the tool name, a
// canonical (sorted-key) JSON encoding of args, and the session ID (or
// "default" when absent), truncated to 16 hex characters.
func GenerateIdempotencyKey(tool string, args map[string]any, sessionID string) string {
	scope := sessionID
	if scope == "" {
		scope = "default"
	}
	canonical := canonicalJSON(args)
	payload := fmt.Sprintf("%s|%s|%s", tool, scope, canonical)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalJSON renders args as JSON with map keys sorted, so identical
// argument sets always hash to the same key regardless of map iteration
// order.
func canonicalJSON(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 64)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(args[k])
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}
