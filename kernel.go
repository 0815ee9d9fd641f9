// Package agentkernel is the composition root: a single facade an LLM agent
// talks to, wiring together the registry, executor, session manager, audit
// log, and authorization check behind discovery, execution, and bundle
// APIs. Grounded on the other_examples kernel facade shape and the
// teacher's functional-options construction style.
package agentkernel

import (
	"context"
	"fmt"
	"time"

	"github.com/shaleyeah/agentkernel/audit"
	"github.com/shaleyeah/agentkernel/authz"
	"github.com/shaleyeah/agentkernel/bundle"
	"github.com/shaleyeah/agentkernel/config"
	"github.com/shaleyeah/agentkernel/executor"
	"github.com/shaleyeah/agentkernel/registry"
	"github.com/shaleyeah/agentkernel/resilience"
	"github.com/shaleyeah/agentkernel/session"
	"github.com/shaleyeah/agentkernel/telemetry"
	"github.com/shaleyeah/agentkernel/toolerr"
	"github.com/shaleyeah/agentkernel/types"
)

// Kernel is the orchestration facade sitting between an LLM agent and the
// worker servers it drives.
type Kernel struct {
	cfg      config.Config
	registry *registry.Registry
	sessions *session.Manager
	audit    *audit.Logger
	exec     *executor.Executor

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	initialized bool
}

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithLogger sets the kernel's logger, propagated to the executor.
func WithLogger(l telemetry.Logger) Option { return func(k *Kernel) { k.logger = l } }

// WithMetrics sets the kernel's metrics recorder, propagated to the executor.
func WithMetrics(m telemetry.Metrics) Option { return func(k *Kernel) { k.metrics = m } }

// WithTracer sets the kernel's tracer, propagated to the executor.
func WithTracer(t telemetry.Tracer) Option { return func(k *Kernel) { k.tracer = t } }

// New constructs a Kernel from a resolved configuration. Call Initialize
// with the worker server list and a transport function before use.
func New(cfg config.Config, opts ...Option) *Kernel {
	k := &Kernel{
		cfg:      cfg,
		registry: registry.New(),
		sessions: session.NewManager(),
		audit:    audit.New(cfg.Security.AuditPath, cfg.Security.AuditEnabled),
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Initialize populates the registry from serverConfigs and binds transport
// as the function used to actually reach worker processes. Calling
// Initialize more than once replaces the prior registry and executor
// entirely; it is safe to call again to pick up a changed server list.
func (k *Kernel) Initialize(serverConfigs []registry.ServerConfig, transport executor.TransportFunc) {
	k.registry.Initialize(serverConfigs)
	for _, c := range serverConfigs {
		k.registry.SetServerStatus(c.Name, types.StatusConnected)
	}

	k.exec = executor.New(k.registry, transport,
		executor.WithLogger(k.logger),
		executor.WithMetrics(k.metrics),
		executor.WithTracer(k.tracer),
		executor.WithBackoff(backoffFromConfig(k.cfg)),
		executor.WithTimeout(k.cfg.Execution.ToolTimeout()),
		executor.WithPerServerRPS(k.cfg.Execution.PerServerRPS),
		executor.WithSchemaValidation(true),
		executor.WithIdempotencyTTL(k.cfg.Execution.IdempotencyTTL()),
		executor.WithContextProvider(func(sessionID string) (types.InjectedContext, bool) {
			s, ok := k.sessions.GetSession(sessionID)
			if !ok {
				return types.InjectedContext{}, false
			}
			return s.InjectedContext(), true
		}),
	)
	k.initialized = true
}

func backoffFromConfig(cfg config.Config) resilience.BackoffConfig {
	return resilience.BackoffConfig{
		MaxRetries: cfg.Resilience.MaxRetries,
		BaseDelay:  cfg.Resilience.RetryBackoff(),
		MaxDelay:   10 * time.Second,
		Jitter:     0.3,
	}
}

// --- Discovery APIs ---

// ListServers returns worker servers matching the optional filter.
func (k *Kernel) ListServers(filter *registry.Filter) []types.ServerInfo {
	return k.registry.ListServers(filter)
}

// DescribeTools returns every tool descriptor, optionally scoped to a
// single server.
func (k *Kernel) DescribeTools(serverName string) []types.ToolDescriptor {
	return k.registry.ListTools(serverName)
}

// FindCapability returns tools whose capabilities match query.
func (k *Kernel) FindCapability(query string) []types.ToolDescriptor {
	return k.registry.FindByCapability(query)
}

// ResolveServer resolves a tool or server name reference to its owning
// server name.
func (k *Kernel) ResolveServer(toolName string) (string, bool) {
	return k.registry.ResolveServer(toolName)
}

// ListBundles returns the names of every predefined task bundle.
func (k *Kernel) ListBundles() []string {
	return bundle.Names()
}

// --- Session APIs ---

// CreateSession allocates a new conversation session, defaulting to an
// analyst-level demo identity when identity is nil and zero-valued
// preferences when preferences is nil.
func (k *Kernel) CreateSession(identity *types.UserIdentity, preferences *types.Preferences) string {
	return k.sessions.CreateSession(identity, preferences).ID()
}

// WhoAmI returns the acting identity bound to a session.
func (k *Kernel) WhoAmI(sessionID string) (types.UserIdentity, error) {
	s, ok := k.sessions.GetSession(sessionID)
	if !ok {
		return types.UserIdentity{}, session.ErrNotFound{ID: sessionID}
	}
	return s.Identity(), nil
}

// DestroySession ends a session, freeing its stored results.
func (k *Kernel) DestroySession(sessionID string) bool {
	return k.sessions.DestroySession(sessionID)
}

// GetSession returns the sanitized view of a session: identity, timestamps,
// and the names of its stored results, but not the raw result payloads.
func (k *Kernel) GetSession(sessionID string) (types.SessionInfo, bool) {
	s, ok := k.sessions.GetSession(sessionID)
	if !ok {
		return types.SessionInfo{}, false
	}
	return s.Info(), true
}

// GetSessionRaw returns the underlying session, including its stored result
// payloads and injected-context snapshot. Callers that only need identity or
// bookkeeping fields should prefer GetSession.
func (k *Kernel) GetSessionRaw(sessionID string) (*session.Session, bool) {
	return k.sessions.GetSession(sessionID)
}

// --- Execution APIs ---

// AuthCheck reports whether the session's identity may invoke toolName,
// without dispatching it.
func (k *Kernel) AuthCheck(toolName, sessionID string) authz.Decision {
	server, _ := k.registry.ResolveServer(toolName)
	var identity *types.UserIdentity
	if s, ok := k.sessions.GetSession(sessionID); ok {
		ident := s.Identity()
		identity = &ident
	}
	return authz.Check(toolName, server, identity, k.cfg.Security.RequireAuth)
}

// Execute dispatches req straight to the executor with no auth check and no
// audit entry. It exists for callers that have already authorized the call
// through some other means (e.g. an internal bundle step) and would
// otherwise double-log it; ordinary agent-driven calls should go through
// CallTool instead.
func (k *Kernel) Execute(ctx context.Context, req types.ToolRequest) (*types.AgentOSResponse, error) {
	if !k.initialized {
		return nil, toolerr.New("kernel not initialized")
	}
	return k.exec.Execute(ctx, req), nil
}

// CallTool runs the auth -> audit(request) -> execute -> audit(response or
// error) pipeline for a single tool call, denying and auditing the denial
// without dispatching when authorization fails.
func (k *Kernel) CallTool(ctx context.Context, req types.ToolRequest) (*types.AgentOSResponse, error) {
	if !k.initialized {
		return nil, toolerr.New("kernel not initialized")
	}

	server, _ := k.registry.ResolveServer(req.Tool)
	var identity types.UserIdentity
	if s, ok := k.sessions.GetSession(req.SessionID); ok {
		identity = s.Identity()
	}

	decision := authz.Check(req.Tool, server, &identity, k.cfg.Security.RequireAuth)
	entry := types.AuditEntry{
		Tool:      req.Tool,
		Parameters: req.Args,
		UserID:    identity.UserID,
		SessionID: req.SessionID,
		Role:      identity.Role,
		Timestamp: time.Now().UTC(),
	}
	if !decision.Allowed {
		k.audit.LogDenial(entry)
		return &types.AgentOSResponse{
			Success: false,
			Summary: fmt.Sprintf("%s denied: %s", req.Tool, decision.Reason),
			Error: &types.ErrorDetail{
				Type:    types.ErrorAuthRequired,
				Message: decision.Reason,
				Reason:  decision.Reason,
				RecoverySteps: []string{
					fmt.Sprintf("request the %s role or the missing permission, then retry", decision.RequiredRole),
				},
			},
		}, nil
	}

	k.audit.LogRequest(entry)
	start := time.Now()
	resp := k.exec.Execute(ctx, req)
	duration := time.Since(start).Milliseconds()

	entry.DurationMs = &duration
	success := resp.Success
	entry.Success = &success
	if resp.Error != nil {
		entry.ErrorType = &resp.Error.Type
		k.audit.LogError(entry)
	} else {
		k.audit.LogResponse(entry)
	}

	if s, ok := k.sessions.GetSession(req.SessionID); ok && resp.Success {
		s.StoreResult(req.Tool, resp.Data)
	}
	return resp, nil
}

// ExecuteParallel runs several tool requests concurrently, bounded by the
// configured max parallelism. The result carries each envelope keyed by
// tool name, aggregate completeness, total wall time, and classified
// failure details.
func (k *Kernel) ExecuteParallel(ctx context.Context, reqs []types.ToolRequest) executor.ScatterResult {
	return k.exec.ScatterGather(ctx, reqs, k.cfg.Execution.MaxParallel)
}

// --- Bundle APIs ---

func (k *Kernel) runBundle(ctx context.Context, name string, args map[string]any, sessionID string) (executor.BundleResult, error) {
	b, ok := bundle.ByName(name, args)
	if !ok {
		return executor.BundleResult{}, toolerr.Errorf("unknown bundle: %s", name)
	}
	return k.exec.RunBundle(ctx, b, sessionID, k.cfg.Execution.MaxParallel), nil
}

// QuickScreen runs the quick_screen bundle.
func (k *Kernel) QuickScreen(ctx context.Context, args map[string]any, sessionID string) (executor.BundleResult, error) {
	return k.runBundle(ctx, "quick_screen", args, sessionID)
}

// FullAnalysis runs the full_due_diligence bundle.
func (k *Kernel) FullAnalysis(ctx context.Context, args map[string]any, sessionID string) (executor.BundleResult, error) {
	return k.runBundle(ctx, "full_due_diligence", args, sessionID)
}

// GeologicalDeepDive runs the geological_deep_dive bundle.
func (k *Kernel) GeologicalDeepDive(ctx context.Context, args map[string]any, sessionID string) (executor.BundleResult, error) {
	return k.runBundle(ctx, "geological_deep_dive", args, sessionID)
}

// FinancialReview runs the financial_review bundle.
func (k *Kernel) FinancialReview(ctx context.Context, args map[string]any, sessionID string) (executor.BundleResult, error) {
	return k.runBundle(ctx, "financial_review", args, sessionID)
}

// ShouldWeInvest runs the full_due_diligence bundle with its final decision
// step removed, then replaces that step with a confirmation-gated pending
// action: the agent must explicitly confirm before the investment decision
// is dispatched to the decision worker. If diligence falls below the
// configured completeness threshold, the returned envelope reports a
// permanent error instead of staging a decision nobody should confirm.
func (k *Kernel) ShouldWeInvest(ctx context.Context, args map[string]any, sessionID string) *types.AgentOSResponse {
	b := executor.FullDueDiligence(args)
	b.Steps = withoutStep(b.Steps, "decision.analyze")

	result := k.exec.RunBundle(ctx, b, sessionID, k.cfg.Execution.MaxParallel)
	if result.Completeness/100 < k.cfg.Resilience.MinCompleteness {
		message := fmt.Sprintf("due diligence too incomplete to decide: %.0f%% complete", result.Completeness)
		return &types.AgentOSResponse{
			Success:         false,
			Summary:         message,
			Completeness:    result.Completeness,
			MissingAnalyses: result.MissingAnalyses,
			Degraded:        result.Degraded,
			Error:           &types.ErrorDetail{Type: types.ErrorPermanent, Message: message},
		}
	}

	decisionArgs := map[string]any{"diligence": result.StepResults}
	req := types.ToolRequest{Tool: "decision.analyze", Args: decisionArgs, SessionID: sessionID}
	resp := k.exec.ExecuteWithConfirmation(ctx, req)
	resp.MissingAnalyses = result.MissingAnalyses
	if resp.Completeness == 0 {
		resp.Completeness = result.Completeness
	}
	return resp
}

func withoutStep(steps []types.BundleStep, tool string) []types.BundleStep {
	out := make([]types.BundleStep, 0, len(steps))
	for _, s := range steps {
		if s.Tool == tool {
			continue
		}
		out = append(out, s)
	}
	return out
}

// --- Confirmation APIs ---

// ConfirmAction resolves a staged destructive action and dispatches it. An
// unknown or already-resolved action id never surfaces as a Go error here;
// it comes back as a permanent-error envelope like any other failure.
func (k *Kernel) ConfirmAction(ctx context.Context, actionID string) *types.AgentOSResponse {
	return k.exec.ConfirmAction(ctx, actionID)
}

// CancelAction discards a staged action without dispatching it.
func (k *Kernel) CancelAction(actionID string) *types.AgentOSResponse {
	return k.exec.CancelAction(actionID)
}

// GenerateIdempotencyKey exposes the executor's idempotency key derivation
// for callers that need to pre-compute a key, e.g. for client-side retries.
func (k *Kernel) GenerateIdempotencyKey(tool string, args map[string]any, sessionID string) string {
	return executor.GenerateIdempotencyKey(tool, args, sessionID)
}
