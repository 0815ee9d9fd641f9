package executor

import (
	"context"

	"github.com/shaleyeah/agentkernel/resilience"
	"github.com/shaleyeah/agentkernel/types"
)

// BundleResult is the outcome of running one TaskBundle: each step's
// response keyed by tool name, plus the overall gather evaluation.
// Completeness is a percentage (0-100) of required (non-optional) steps
// that succeeded, matching the executor's single-call and scatter-gather
// envelopes. MissingAnalyses lists every step (required or optional) that
// never produced a successful result, per resilience.HandleDegradation.
type BundleResult struct {
	StepResults     map[string]*types.AgentOSResponse
	Completeness    float64
	Satisfied       bool
	Degraded        bool
	MissingAnalyses []string
	Suggestion      string
}

// RunBundle executes a TaskBundle's steps phase by phase: a phase containing
// any Parallel=true step runs as one ScatterGather, and a phase with none
// runs its steps one after another; dependent steps wait for every step
// they DependsOn to complete first. Steps whose
// dependencies form a cycle or name a step absent from the bundle are
// placed into one final phase, run after everything else, matching the
// kernel's conservative fallback rather than rejecting the whole bundle.
func (e *Executor) RunBundle(ctx context.Context, bundle types.TaskBundle, sessionID string, maxParallel int) BundleResult {
	phases := resolvePhases(bundle.Steps)

	stepResults := make(map[string]*types.AgentOSResponse)

	placed := make(map[string]bool)
	for _, phase := range phases {
		// The trailing catch-all phase holds steps with a dependency that was
		// never placed earlier (cyclic or absent); those run unconditionally.
		catchAll := false
		for _, step := range phase {
			for _, dep := range step.DependsOn {
				catchAll = catchAll || !placed[dep]
			}
		}
		for _, step := range phase {
			placed[step.Tool] = true
		}

		var toRun []types.BundleStep
		anyParallel := false
		for _, step := range phase {
			if catchAll {
				// no dependency gating in the catch-all phase
			} else if step.Optional {
				if !allDepsSucceeded(step, stepResults) {
					continue
				}
			} else if !allDepsCompleted(step, stepResults) {
				continue
			}
			toRun = append(toRun, step)
			anyParallel = anyParallel || step.Parallel
		}
		if len(toRun) == 0 {
			continue
		}

		reqs := make([]types.ToolRequest, len(toRun))
		for i, step := range toRun {
			reqs[i] = types.ToolRequest{
				Tool:        step.Tool,
				Args:        step.Args,
				SessionID:   sessionID,
				DetailLevel: step.DetailLevelOverride,
			}
		}
		if !anyParallel {
			for _, req := range reqs {
				stepResults[req.Tool] = e.Execute(ctx, req)
			}
			continue
		}
		scattered := e.ScatterGather(ctx, reqs, maxParallel)
		for tool, resp := range scattered.Results {
			stepResults[tool] = resp
		}
	}

	satisfied, completeness := EvaluateGatherStrategy(stepResults, bundle.Steps, bundle.GatherStrategy)
	degraded := false
	for _, step := range bundle.Steps {
		r, ran := stepResults[step.Tool]
		if !ran || r == nil || !r.Success {
			degraded = true
			break
		}
	}

	allTools := make([]string, len(bundle.Steps))
	for i, step := range bundle.Steps {
		allTools[i] = step.Tool
	}
	degradation := resilience.HandleDegradation(stepResults, allTools)

	return BundleResult{
		StepResults:     stepResults,
		Completeness:    completeness,
		Satisfied:       satisfied,
		Degraded:        degraded,
		MissingAnalyses: degradation.MissingTools,
		Suggestion:      degradation.Suggestion,
	}
}

func allDepsCompleted(step types.BundleStep, results map[string]*types.AgentOSResponse) bool {
	for _, dep := range step.DependsOn {
		if _, ok := results[dep]; !ok {
			return false
		}
	}
	return true
}

func allDepsSucceeded(step types.BundleStep, results map[string]*types.AgentOSResponse) bool {
	for _, dep := range step.DependsOn {
		r, ok := results[dep]
		if !ok || r == nil || !r.Success {
			return false
		}
	}
	return true
}

// resolvePhases partitions steps into ordered phases via topological sort
// on DependsOn. Steps whose dependency graph is cyclic or references a
// step not present in the bundle are collected into one trailing phase run
// after every resolvable phase.
func resolvePhases(steps []types.BundleStep) [][]types.BundleStep {
	byTool := make(map[string]types.BundleStep, len(steps))
	for _, s := range steps {
		byTool[s.Tool] = s
	}

	remaining := make(map[string]types.BundleStep, len(steps))
	for _, s := range steps {
		remaining[s.Tool] = s
	}

	var phases [][]types.BundleStep
	placed := make(map[string]bool)

	for len(remaining) > 0 {
		var ready []types.BundleStep
		for tool, step := range remaining {
			depsOK := true
			for _, dep := range step.DependsOn {
				if _, known := byTool[dep]; !known {
					// Missing dependency: can never become placed, so this
					// step can never become ready through the normal loop.
					// It falls into the trailing catch-all phase alongside
					// genuinely cyclic steps.
					depsOK = false
					break
				}
				if !placed[dep] {
					depsOK = false
					break
				}
			}
			if depsOK {
				ready = append(ready, step)
			}
			_ = tool
		}
		if len(ready) == 0 {
			// Cyclic or unresolvable remainder: run together as one final phase.
			var leftover []types.BundleStep
			for _, step := range remaining {
				leftover = append(leftover, step)
			}
			phases = append(phases, leftover)
			break
		}
		for _, step := range ready {
			delete(remaining, step.Tool)
			placed[step.Tool] = true
		}
		phases = append(phases, ready)
	}
	return phases
}
