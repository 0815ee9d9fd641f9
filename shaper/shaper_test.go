package shaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaleyeah/agentkernel/types"
)

func TestShapeExtractsExplicitConfidence(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"confidence": 91.0, "formationQuality": map[string]any{"reservoirQuality": "excellent"}}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	assert.Equal(t, 91.0, resp.Confidence)
}

func TestShapeFallsBackToNestedConfidence(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"details": map[string]any{"confidence": 60.0}}
	resp := Shape(raw, Options{})
	assert.Equal(t, 60.0, resp.Confidence)
}

func TestShapeDefaultsConfidenceToZero(t *testing.T) {
	t.Parallel()
	resp := Shape(map[string]any{"foo": "bar"}, Options{})
	assert.Equal(t, 0.0, resp.Confidence)
}

func TestShapeFullDetailReturnsRawData(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"formationQuality": map[string]any{"reservoirQuality": "good"}, "sensitivityAnalysis": map[string]any{"dump": true}}
	resp := Shape(raw, Options{DetailLevel: types.DetailFull})
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "sensitivityAnalysis")
}

func TestShapeStandardDetailStripsVerboseKeys(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"formationQuality":    map[string]any{"reservoirQuality": "good"},
		"sensitivityAnalysis": map[string]any{"dump": true},
		"monteCarloResults":   []any{1, 2, 3},
	}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, data, "sensitivityAnalysis")
	assert.NotContains(t, data, "monteCarloResults")
	assert.Contains(t, data, "formationQuality")
}

func TestShapeSummaryDetailExtractsDomainFields(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"formationQuality": map[string]any{
			"reservoirQuality":     "excellent",
			"hydrocarbonPotential": "high",
		},
		"investmentPerspective": map[string]any{
			"recommendedAction":    "proceed",
			"geologicalConfidence": "high",
		},
		"professionalSummary": "Strong Wolfcamp interval.",
		"confidence":          75.0,
		"sensitivityAnalysis": map[string]any{"dump": true},
	}
	resp := Shape(raw, Options{DetailLevel: types.DetailSummary})
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "excellent", data["reservoirQuality"])
	assert.Equal(t, "high", data["hydrocarbonPotential"])
	assert.Equal(t, "proceed", data["recommendedAction"])
	assert.Equal(t, "Strong Wolfcamp interval.", data["professionalSummary"])
	assert.Equal(t, 75.0, data["confidence"])
	assert.NotContains(t, data, "sensitivityAnalysis")
}

func TestShapeDetectsDomainByKeyOrder(t *testing.T) {
	t.Parallel()
	// Both "formationQuality" (geological) and "npv" (economic) present;
	// geological is checked first per the fixed domain order.
	raw := map[string]any{
		"formationQuality": map[string]any{"reservoirQuality": "fair"},
		"npv":              1000000.0,
		"confidence":       50.0,
	}
	resp := Shape(raw, Options{DetailLevel: types.DetailSummary})
	assert.Contains(t, resp.Summary, "Fair reservoir quality")
}

func TestShapeUnknownDomainFallsBackToScalars(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"status": "ok", "count": 3}
	resp := Shape(raw, Options{DetailLevel: types.DetailSummary, ToolName: "test.analyze"})
	assert.Equal(t, "Analysis complete. Confidence: 0%.", resp.Summary)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, 3, data["count"])
}

func TestBuildSummaryEconomicTemplate(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"npv": 4_500_000.0, "irr": 18.2, "confidence": 82.0}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	assert.Equal(t, "NPV: $4.5M, IRR: 18.2%. Confidence: 82%.", resp.Summary)
}

func TestBuildSummaryCurveTemplateHandlesMissingFields(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"eur": map[string]any{}, "confidence": 40.0}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	assert.Equal(t, "EUR: N/AK BOE, grade: unknown. Confidence: 40%.", resp.Summary)
}

func TestBuildSummaryRiskTemplate(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"riskScore": 72.0, "confidence": 65.0}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	assert.Equal(t, "Overall risk score: 72/100. Confidence: 65%.", resp.Summary)
}
