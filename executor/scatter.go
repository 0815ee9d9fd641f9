package executor

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaleyeah/agentkernel/resilience"
	"github.com/shaleyeah/agentkernel/types"
)

// FailureDetail summarizes one failed call within a scatter-gather batch,
// carrying its classified error for the agent to inspect without digging
// through the full per-tool envelope.
type FailureDetail struct {
	ToolName string
	Error    *types.ErrorDetail
}

// ScatterResult is the aggregate outcome of a parallel call: every
// requested tool's envelope keyed by tool name, overall completeness as a
// percentage, total wall time, the failures that occurred, and the tools
// that never produced a successful result.
type ScatterResult struct {
	Results         map[string]*types.AgentOSResponse
	Completeness    float64 // percentage, 0-100
	WallTimeMs      int64
	Failures        []FailureDetail
	MissingAnalyses []string
	Suggestion      string
}

// ScatterGather dispatches every request in reqs concurrently, bounded by
// maxParallel in-flight calls via a weighted semaphore. Individual failures
// never block siblings (all-settled semantics); the result map always
// contains an entry for every requested tool.
func (e *Executor) ScatterGather(ctx context.Context, reqs []types.ToolRequest, maxParallel int) ScatterResult {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	start := time.Now()

	type indexedResult struct {
		tool string
		resp *types.AgentOSResponse
	}
	out := make(chan indexedResult, len(reqs))
	sem := semaphore.NewWeighted(int64(maxParallel))
	var wg sync.WaitGroup

	for _, req := range reqs {
		req := req
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- indexedResult{tool: req.Tool, resp: e.errorResponse(req, err, "", 0, 0)}
				return
			}
			defer sem.Release(1)
			out <- indexedResult{tool: req.Tool, resp: e.Execute(ctx, req)}
		}()
	}
	wg.Wait()
	close(out)

	results := make(map[string]*types.AgentOSResponse, len(reqs))
	toolNames := make([]string, 0, len(reqs))
	var failures []FailureDetail
	for r := range out {
		results[r.tool] = r.resp
		toolNames = append(toolNames, r.tool)
		if r.resp != nil && !r.resp.Success {
			failures = append(failures, FailureDetail{ToolName: r.tool, Error: r.resp.Error})
		}
	}

	degradation := resilience.HandleDegradation(results, toolNames)

	return ScatterResult{
		Results:         results,
		Completeness:    degradation.Completeness,
		WallTimeMs:      time.Since(start).Milliseconds(),
		Failures:        failures,
		MissingAnalyses: degradation.MissingTools,
		Suggestion:      degradation.Suggestion,
	}
}

// EvaluateGatherStrategy reports whether a bundle's results satisfy
// the requested gather strategy, given the steps that produced them (needed
// to distinguish required from optional steps for the "all" strategy).
func EvaluateGatherStrategy(results map[string]*types.AgentOSResponse, steps []types.BundleStep, strategy types.GatherStrategy) (satisfied bool, completeness float64) {
	if len(steps) == 0 {
		return true, 100
	}
	requiredTotal, requiredSucceeded := 0, 0
	totalSucceeded := 0
	for _, step := range steps {
		r, ok := results[step.Tool]
		ok = ok && r != nil && r.Success
		if ok {
			totalSucceeded++
		}
		if !step.Optional {
			requiredTotal++
			if ok {
				requiredSucceeded++
			}
		}
	}
	if requiredTotal > 0 {
		completeness = math.Round(float64(requiredSucceeded) / float64(requiredTotal) * 100)
	} else {
		completeness = 100
	}

	switch strategy {
	case types.GatherAny:
		return totalSucceeded > 0, completeness
	case types.GatherMajority:
		return totalSucceeded*2 > len(steps), completeness
	case types.GatherAll:
		fallthrough
	default:
		return requiredSucceeded == requiredTotal, completeness
	}
}
