// Package bundle defines two of the kernel's four predefined task bundles —
// geological_deep_dive and financial_review — plus the ByName/Names lookup
// spanning all four. quick_screen and full_due_diligence live in the
// executor package instead: spec.md's bundle table splits the four
// predefined bundles across both modules, and this package calls into
// executor's two for the lookup table rather than redefining them.
package bundle

import (
	"github.com/shaleyeah/agentkernel/executor"
	"github.com/shaleyeah/agentkernel/types"
)

func step(tool string, args map[string]any, opts ...func(*types.BundleStep)) types.BundleStep {
	s := types.BundleStep{Tool: tool, Args: args}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func parallel(s *types.BundleStep) { s.Parallel = true }
func optional(s *types.BundleStep) { s.Optional = true }
func detail(level types.DetailLevel) func(*types.BundleStep) {
	return func(s *types.BundleStep) { s.DetailLevelOverride = level }
}

// GeologicalDeepDive runs geowiz at full detail, curve-smith at standard
// detail, and research at summary detail, all in parallel.
func GeologicalDeepDive(args map[string]any) types.TaskBundle {
	return types.TaskBundle{
		Name:        "geological_deep_dive",
		Description: "In-depth geological analysis with curve and research context",
		Steps: []types.BundleStep{
			step("geowiz.analyze", args, parallel, detail(types.DetailFull)),
			step("curve-smith.analyze", args, parallel, detail(types.DetailStandard)),
			step("research.analyze", args, parallel, optional, detail(types.DetailSummary)),
		},
		GatherStrategy: types.GatherAll,
	}
}

// FinancialReview runs econobot at full detail, risk-analysis at standard
// detail, and market at summary detail, all in parallel.
func FinancialReview(args map[string]any) types.TaskBundle {
	return types.TaskBundle{
		Name:        "financial_review",
		Description: "Economic and risk analysis with market context",
		Steps: []types.BundleStep{
			step("econobot.analyze", args, parallel, detail(types.DetailFull)),
			step("risk-analysis.analyze", args, parallel, detail(types.DetailStandard)),
			step("market.analyze", args, parallel, optional, detail(types.DetailSummary)),
		},
		GatherStrategy: types.GatherAll,
	}
}

// ByName resolves a bundle constructor by its fixed name, used by the
// kernel facade when dispatching a named bundle request.
func ByName(name string, args map[string]any) (types.TaskBundle, bool) {
	switch name {
	case "quick_screen":
		return executor.QuickScreen(args), true
	case "full_due_diligence":
		return executor.FullDueDiligence(args), true
	case "geological_deep_dive":
		return GeologicalDeepDive(args), true
	case "financial_review":
		return FinancialReview(args), true
	default:
		return types.TaskBundle{}, false
	}
}

// Names lists every predefined bundle name in a fixed, stable order.
func Names() []string {
	return []string{"quick_screen", "full_due_diligence", "geological_deep_dive", "financial_review"}
}
