package executor

import (
	"github.com/shaleyeah/agentkernel/types"
)

// step, parallel, optional, dependsOn, and detail build a types.BundleStep
// declaratively, matching the sibling bundle package's helper shape since
// both packages construct the same BundleStep values.
func step(tool string, args map[string]any, opts ...func(*types.BundleStep)) types.BundleStep {
	s := types.BundleStep{Tool: tool, Args: args}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func parallel(s *types.BundleStep) { s.Parallel = true }
func optional(s *types.BundleStep) { s.Optional = true }
func dependsOn(tools ...string) func(*types.BundleStep) {
	return func(s *types.BundleStep) { s.DependsOn = tools }
}
func detail(level types.DetailLevel) func(*types.BundleStep) {
	return func(s *types.BundleStep) { s.DetailLevelOverride = level }
}

// QuickScreen runs geowiz, econobot, curve-smith, and risk-analysis in
// parallel at summary detail, none optional. Defined in the executor module
// per spec.md's bundle table, which splits quick_screen and
// full_due_diligence out from the other two predefined bundles.
func QuickScreen(args map[string]any) types.TaskBundle {
	return types.TaskBundle{
		Name:        "quick_screen",
		Description: "Fast parallel geological, economic, curve, and risk screen",
		Steps: []types.BundleStep{
			step("geowiz.analyze", args, parallel, detail(types.DetailSummary)),
			step("econobot.analyze", args, parallel, detail(types.DetailSummary)),
			step("curve-smith.analyze", args, parallel, detail(types.DetailSummary)),
			step("risk-analysis.analyze", args, parallel, detail(types.DetailSummary)),
		},
		GatherStrategy: types.GatherAll,
	}
}

// FullDueDiligence runs the complete four-phase pipeline: geological,
// economic, curve, market, and research analysis; then risk, legal, title,
// drilling, infrastructure, and development assessment depending on phase
// one; then testing depending on risk; then reporting and a final decision.
func FullDueDiligence(args map[string]any) types.TaskBundle {
	phase1 := []string{"geowiz.analyze", "econobot.analyze", "curve-smith.analyze", "market.analyze", "research.analyze"}
	return types.TaskBundle{
		Name:        "full_due_diligence",
		Description: "Complete geological, economic, risk, and reporting pipeline",
		Steps: []types.BundleStep{
			step("geowiz.analyze", args, parallel),
			step("econobot.analyze", args, parallel),
			step("curve-smith.analyze", args, parallel),
			step("market.analyze", args, parallel, optional),
			step("research.analyze", args, parallel, optional),

			step("risk-analysis.analyze", args, parallel, dependsOn(phase1...)),
			step("legal.analyze", args, parallel, optional, dependsOn(phase1...)),
			step("title.analyze", args, parallel, optional, dependsOn(phase1...)),
			step("drilling.analyze", args, parallel, optional, dependsOn(phase1...)),
			step("infrastructure.analyze", args, parallel, optional, dependsOn(phase1...)),
			step("development.analyze", args, parallel, optional, dependsOn(phase1...)),

			step("test.analyze", args, optional, dependsOn("risk-analysis.analyze")),

			step("reporter.analyze", args, detail(types.DetailFull), dependsOn("test.analyze")),
			step("decision.analyze", args, detail(types.DetailFull), dependsOn("reporter.analyze")),
		},
		GatherStrategy: types.GatherMajority,
	}
}
