package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shaleyeah/agentkernel/types"
)

// confirmationGate holds pending destructive actions awaiting an explicit
// confirm or cancel call. Resolution is a compare-and-delete under a single
// mutex so a pending action can be confirmed or canceled exactly once, even
// under concurrent callers. No automatic TTL expiry is applied; pending
// actions live until explicitly resolved.
type confirmationGate struct {
	mu      sync.Mutex
	pending map[string]types.PendingAction
}

func newConfirmationGate() *confirmationGate {
	return &confirmationGate{pending: make(map[string]types.PendingAction)}
}

// Stage registers a pending action and returns it. The action id is derived
// the same way as an idempotency key, seeded with a confirm-<epoch-ms>
// session marker so it never collides with a real session scope.
func (g *confirmationGate) Stage(req types.ToolRequest, description string) types.PendingAction {
	marker := fmt.Sprintf("confirm-%d", time.Now().UnixMilli())
	action := types.PendingAction{
		ActionID:    GenerateIdempotencyKey(req.Tool, req.Args, marker),
		Tool:        req.Tool,
		Args:        req.Args,
		CreatedAt:   time.Now().UTC(),
		Description: description,
	}
	g.mu.Lock()
	g.pending[action.ActionID] = action
	g.mu.Unlock()
	return action
}

// Resolve atomically removes and returns the pending action for actionID.
// The second return is false if no such action exists (already resolved,
// canceled, or never staged).
func (g *confirmationGate) Resolve(actionID string) (types.PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	action, ok := g.pending[actionID]
	if !ok {
		return types.PendingAction{}, false
	}
	delete(g.pending, actionID)
	return action, true
}

// ExecuteWithConfirmation stages req if its tool requires confirmation,
// returning a successful envelope whose data carries the pending action
// instead of dispatching. Confidence and completeness are both 0 on this
// envelope since nothing has actually run yet. Tools that do not require
// confirmation execute immediately.
func (e *Executor) ExecuteWithConfirmation(ctx context.Context, req types.ToolRequest) *types.AgentOSResponse {
	tool, ok := e.registry.GetTool(req.Tool)
	if !ok {
		return e.errorResponse(req, fmt.Errorf("unknown tool: %s", req.Tool), "", 0, 0)
	}
	if !tool.RequiresConfirmation {
		return e.Execute(ctx, req)
	}

	action := e.gate.Stage(req, tool.Description)
	return &types.AgentOSResponse{
		Success:      true,
		Summary:      fmt.Sprintf("%s requires confirmation before it will run.", req.Tool),
		Confidence:   0,
		Completeness: 0,
		DetailLevel:  req.DetailLevel,
		Data: map[string]any{
			"requires_confirmation": true,
			"pending_action":        action,
		},
		Metadata: types.ResponseMetadata{
			Server:    tool.Server,
			Timestamp: time.Now().UTC(),
		},
	}
}

// ConfirmAction resolves a staged action by ID and dispatches it. An
// unknown or already-resolved action id never produces a Go error across
// this surface; it returns a permanent-error envelope instead, matching
// every other failure mode the executor reports.
func (e *Executor) ConfirmAction(ctx context.Context, actionID string) *types.AgentOSResponse {
	action, ok := e.gate.Resolve(actionID)
	if !ok {
		return permanentErrorEnvelope(actionID, "No pending action found")
	}
	req := types.ToolRequest{Tool: action.Tool, Args: action.Args}
	return e.Execute(ctx, req)
}

// CancelAction discards a staged action without dispatching it, returning a
// permanent-error envelope if the action was never staged or was already
// resolved.
func (e *Executor) CancelAction(actionID string) *types.AgentOSResponse {
	action, ok := e.gate.Resolve(actionID)
	if !ok {
		return permanentErrorEnvelope(actionID, "No pending action found")
	}
	return &types.AgentOSResponse{
		Success:      true,
		Summary:      fmt.Sprintf("Canceled pending action for %s.", action.Tool),
		Completeness: 100,
	}
}

func permanentErrorEnvelope(actionID, message string) *types.AgentOSResponse {
	return &types.AgentOSResponse{
		Success: false,
		Summary: message,
		Error: &types.ErrorDetail{
			Type:    types.ErrorPermanent,
			Message: message,
			Reason:  fmt.Sprintf("action id %s is unknown or already resolved", actionID),
		},
	}
}
