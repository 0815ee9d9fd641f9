package agentkernel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaleyeah/agentkernel/config"
	"github.com/shaleyeah/agentkernel/executor"
	"github.com/shaleyeah/agentkernel/registry"
	"github.com/shaleyeah/agentkernel/resilience"
	"github.com/shaleyeah/agentkernel/types"
)

func testServers() []registry.ServerConfig {
	return []registry.ServerConfig{
		{Name: "geowiz", Domain: "geology", Capabilities: []string{"formation analysis"}},
		{Name: "econobot", Domain: "economics", Capabilities: []string{"npv"}},
		{Name: "curve-smith", Domain: "markets", Capabilities: []string{"price curve"}},
		{Name: "risk-analysis", Domain: "risk", Capabilities: []string{"risk scoring"}},
		{Name: "market", Domain: "markets", Capabilities: []string{"market outlook"}},
		{Name: "research", Domain: "research", Capabilities: []string{"literature search"}},
		{Name: "legal", Domain: "legal", Capabilities: []string{"title review"}},
		{Name: "title", Domain: "legal", Capabilities: []string{"title chain"}},
		{Name: "drilling", Domain: "engineering", Capabilities: []string{"drilling plan"}},
		{Name: "infrastructure", Domain: "engineering", Capabilities: []string{"midstream access"}},
		{Name: "development", Domain: "engineering", Capabilities: []string{"development plan"}},
		{Name: "test", Domain: "quality", Capabilities: []string{"validation"}},
		{Name: "reporter", Domain: "reporting", Capabilities: []string{"report generation"}},
		{Name: "decision", Domain: "decisions", Capabilities: []string{"investment decision"}},
	}
}

func newTestKernel(t *testing.T, transport executor.TransportFunc) *Kernel {
	t.Helper()
	cfg := config.Defaults()
	cfg.Resilience.RetryBackoffMs = 100
	cfg.Security.AuditPath = t.TempDir()
	k := New(cfg)
	k.Initialize(testServers(), transport)
	return k
}

// Scenario 1: happy single-call with retry.
func TestCallToolRetriesThenSucceeds(t *testing.T) {
	var calls int32
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			return nil, assertError("ETIMEDOUT")
		}
		return map[string]any{"confidence": 82.0}, nil
	})

	sessionID := k.CreateSession(nil, nil)
	resp, err := k.CallTool(context.Background(), types.ToolRequest{Tool: "geowiz.analyze", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, 2, resp.Metadata.RetryAttempts)
	assert.GreaterOrEqual(t, resp.Metadata.TotalRetryDelayMs, int64(300))
}

// Scenario 2: scatter-gather partial failure.
func TestExecuteParallelPartialFailure(t *testing.T) {
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		if req.Tool == "curve-smith.analyze" {
			return nil, assertError("invalid las")
		}
		return map[string]any{"confidence": 80.0}, nil
	})

	reqs := []types.ToolRequest{
		{Tool: "geowiz.analyze"},
		{Tool: "econobot.analyze"},
		{Tool: "curve-smith.analyze"},
	}
	result := k.ExecuteParallel(context.Background(), reqs)

	assert.Equal(t, 67.0, result.Completeness)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "curve-smith.analyze", result.Failures[0].ToolName)
	require.NotNil(t, result.Failures[0].Error)
	assert.Contains(t, result.Failures[0].Error.AlternativeTools, "econobot.analyze")
}

// Scenario 3: quick_screen bundle, all success.
func TestQuickScreenAllSuccess(t *testing.T) {
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		return map[string]any{"confidence": 80.0}, nil
	})

	sessionID := k.CreateSession(nil, nil)
	result, err := k.QuickScreen(context.Background(), map[string]any{"basin": "Permian"}, sessionID)
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
	assert.Equal(t, 100.0, result.Completeness)
	require.Len(t, result.StepResults, 4)
	for _, tool := range []string{"geowiz.analyze", "econobot.analyze", "curve-smith.analyze", "risk-analysis.analyze"} {
		r, ok := result.StepResults[tool]
		require.True(t, ok, tool)
		assert.True(t, r.Success)
	}
}

// Scenario 4: full due diligence with one optional failure.
func TestFullAnalysisOptionalFailureStillSatisfied(t *testing.T) {
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		if req.Tool == "research.analyze" {
			return nil, assertError("research unavailable")
		}
		return map[string]any{"confidence": 70.0}, nil
	})

	sessionID := k.CreateSession(nil, nil)
	result, err := k.FullAnalysis(context.Background(), map[string]any{"basin": "Permian"}, sessionID)
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
	require.Contains(t, result.StepResults, "research.analyze")
	assert.False(t, result.StepResults["research.analyze"].Success)
	assert.True(t, result.StepResults["geowiz.analyze"].Success)
}

// Scenario 5: auth denial.
func TestCallToolDeniesWithoutPermission(t *testing.T) {
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		t.Fatal("transport must not be invoked on denial")
		return nil, nil
	})
	k.cfg.Security.RequireAuth = true

	analyst := types.UserIdentity{UserID: "u1", Role: types.RoleAnalyst, Permissions: map[string]struct{}{"read:analysis": {}}}
	sessionID := k.CreateSession(&analyst, nil)

	resp, err := k.CallTool(context.Background(), types.ToolRequest{Tool: "reporter.analyze", SessionID: sessionID})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.ErrorAuthRequired, resp.Error.Type)
	assert.Contains(t, resp.Error.Reason, "write:reports")

	entries, err := k.audit.GetEntries("")
	require.NoError(t, err)
	var denied int
	for _, e := range entries {
		if e.Action == types.AuditDenied {
			denied++
		}
	}
	assert.Equal(t, 1, denied)
}

// Scenario 6: confirmation gate.
func TestExecuteWithConfirmationGatesDecision(t *testing.T) {
	var dispatched bool
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		dispatched = true
		return map[string]any{"confidence": 90.0}, nil
	})

	sessionID := k.CreateSession(nil, nil)
	staged := k.exec.ExecuteWithConfirmation(context.Background(), types.ToolRequest{Tool: "decision.analyze", SessionID: sessionID})
	require.True(t, staged.Success)
	data := staged.Data.(map[string]any)
	assert.Equal(t, true, data["requires_confirmation"])
	pending := data["pending_action"].(types.PendingAction)
	assert.Len(t, pending.ActionID, 16)
	assert.False(t, dispatched)

	confirmed := k.ConfirmAction(context.Background(), pending.ActionID)
	assert.True(t, confirmed.Success)
	assert.True(t, dispatched)

	second := k.ConfirmAction(context.Background(), pending.ActionID)
	require.False(t, second.Success)
	require.NotNil(t, second.Error)
	assert.Equal(t, "No pending action found", second.Error.Message)
}

// Execute bypasses auth and audit entirely.
func TestExecuteBypassesAuthAndAudit(t *testing.T) {
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		return map[string]any{"confidence": 60.0}, nil
	})
	k.cfg.Security.RequireAuth = true

	resp, err := k.Execute(context.Background(), types.ToolRequest{Tool: "reporter.analyze"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	entries, err := k.audit.GetEntries("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetSessionReturnsSanitizedInfoAndGetSessionRawReturnsSession(t *testing.T) {
	prefs := types.Preferences{DefaultBasin: "Permian"}
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		return map[string]any{"confidence": 80.0}, nil
	})

	sessionID := k.CreateSession(nil, &prefs)
	_, err := k.CallTool(context.Background(), types.ToolRequest{Tool: "geowiz.analyze", SessionID: sessionID})
	require.NoError(t, err)

	info, ok := k.GetSession(sessionID)
	require.True(t, ok)
	assert.Equal(t, "demo", info.UserID)
	assert.Contains(t, info.AvailableResults, "geowiz.analyze")

	raw, ok := k.GetSessionRaw(sessionID)
	require.True(t, ok)
	assert.Equal(t, "Permian", raw.InjectedContext().DefaultBasin)
}

// CallTool attaches the session's injected context to the outgoing request.
func TestCallToolAttachesInjectedContext(t *testing.T) {
	var seen *types.InjectedContext
	k := newTestKernel(t, func(ctx context.Context, req types.ToolRequest) (map[string]any, error) {
		seen = req.Context
		return map[string]any{"confidence": 80.0}, nil
	})

	prefs := types.Preferences{DefaultBasin: "Anadarko"}
	sessionID := k.CreateSession(nil, &prefs)
	_, err := k.CallTool(context.Background(), types.ToolRequest{Tool: "geowiz.analyze", SessionID: sessionID})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "Anadarko", seen.DefaultBasin)
	assert.Equal(t, sessionID, seen.SessionID)
}

func TestIdempotencyKeyDeterministicOverKeyOrder(t *testing.T) {
	argsA := map[string]any{"basin": "Permian", "zone": "A"}
	argsB := map[string]any{"zone": "A", "basin": "Permian"}
	k := newTestKernel(t, nil)
	assert.Equal(t, k.GenerateIdempotencyKey("geowiz.analyze", argsA, "s1"), k.GenerateIdempotencyKey("geowiz.analyze", argsB, "s1"))
}

type assertError string

func (e assertError) Error() string { return string(e) }

var _ = resilience.BackoffConfig{}
var _ = time.Second
