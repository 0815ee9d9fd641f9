// Package shaper converts raw worker payloads into the progressive-disclosure
// AgentOSResponse envelope, extracting confidence, detecting domain, and
// trimming or summarizing the payload per requested detail level.
package shaper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaleyeah/agentkernel/types"
)

// Options controls shaping behavior for a single response.
type Options struct {
	DetailLevel types.DetailLevel
	ToolName    string
	Server      string
}

// verboseKeys are stripped (recursively, at any depth) when collapsing full
// detail down to standard.
var verboseKeys = map[string]struct{}{
	"sensitivityAnalysis": {},
	"monteCarloResults":   {},
	"rawData":             {},
	"depthData":           {},
	"curveData":           {},
}

// domainOrder fixes the precedence used when detecting which domain a raw
// payload belongs to: the first domain whose trigger key is present at the
// top level wins.
var domainOrder = []struct {
	domain  string
	trigger string
}{
	{"geological", "formationQuality"},
	{"economic", "npv"},
	{"curve", "eur"},
	{"risk", "riskScore"},
	{"market", "marketCondition"},
	{"gis", "coordinates"},
}

// summaryFields lists, per domain, the dotted paths pulled into a summary
// envelope; domains absent from this map fall back to the first three
// top-level keys. Output keys are the last segment of each path.
var summaryFields = map[string][]string{
	"geological": {
		"formationQuality.reservoirQuality",
		"formationQuality.hydrocarbonPotential",
		"investmentPerspective.recommendedAction",
		"investmentPerspective.geologicalConfidence",
		"professionalSummary",
	},
	"economic": {"npv", "irr", "paybackMonths"},
	"curve":    {"eur.oil", "qualityGrade"},
	"risk":     {"riskScore", "topRiskFactors"},
}

// Shape converts a raw worker payload into a full AgentOSResponse body.
// Success responses only; error shaping lives in resilience.
func Shape(raw map[string]any, opts Options) *types.AgentOSResponse {
	confidence := extractConfidence(raw)
	domain := detectDomain(raw)
	level := opts.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}

	var data any
	switch level {
	case types.DetailFull:
		data = raw
	case types.DetailSummary:
		data = summarize(raw, domain)
	default:
		data = stripVerbose(raw)
	}

	return &types.AgentOSResponse{
		Success:      true,
		Summary:      buildSummary(domain, raw, opts, confidence),
		Confidence:   confidence,
		Data:         data,
		DetailLevel:  level,
		Completeness: 100,
	}
}

// extractConfidence prefers an explicit top-level "confidence" field, falls
// back to a one-level-deep search inside any object-valued key, and
// otherwise returns 0.
func extractConfidence(raw map[string]any) float64 {
	if v, ok := raw["confidence"]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	for _, v := range raw {
		if nested, ok := v.(map[string]any); ok {
			if c, ok := nested["confidence"]; ok {
				if f, ok := toFloat(c); ok {
					return f
				}
			}
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// detectDomain finds the first domain (in fixed precedence order) whose
// trigger key is present at the top level of raw.
func detectDomain(raw map[string]any) string {
	for _, d := range domainOrder {
		if _, ok := raw[d.trigger]; ok {
			return d.domain
		}
	}
	return ""
}

func stripVerbose(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if _, skip := verboseKeys[k]; skip {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = stripVerbose(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// lookupPath resolves a dotted path by walking nested maps one segment at a
// time; any segment that isn't present or isn't itself a map ends the walk
// with ok=false.
func lookupPath(raw map[string]any, path string) (any, bool) {
	var cur any = raw
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// summarize extracts a domain's fixed summary fields, flattening each dotted
// path to its last segment. Domains with no summary rule fall back to the
// first three top-level keys (sorted for determinism). confidence is always
// preserved when present.
func summarize(raw map[string]any, domain string) map[string]any {
	out := make(map[string]any)
	if fields, ok := summaryFields[domain]; ok {
		for _, path := range fields {
			if v, found := lookupPath(raw, path); found {
				out[lastSegment(path)] = v
			}
		}
	} else {
		keys := sortedKeys(raw)
		taken := 0
		for _, k := range keys {
			if k == "confidence" {
				continue
			}
			if taken >= 3 {
				break
			}
			out[k] = raw[k]
			taken++
		}
	}
	if v, ok := raw["confidence"]; ok {
		out["confidence"] = v
	}
	return out
}

func buildSummary(domain string, raw map[string]any, opts Options, confidence float64) string {
	pct := confidence
	switch domain {
	case "geological":
		quality, _ := lookupPath(raw, "formationQuality.reservoirQuality")
		action, _ := lookupPath(raw, "investmentPerspective.recommendedAction")
		return fmt.Sprintf("%s reservoir quality. Recommended action: %s. Confidence: %.0f%%.",
			capitalize(strOrUnknown(quality)), strOrNA(action), pct)
	case "economic":
		npv, _ := lookupPath(raw, "npv")
		irr, _ := lookupPath(raw, "irr")
		return fmt.Sprintf("NPV: $%sM, IRR: %s%%. Confidence: %.0f%%.",
			scaledOrNA(npv, 1e6, 1), strOrNA(irr), pct)
	case "curve":
		eurOil, _ := lookupPath(raw, "eur.oil")
		grade, _ := lookupPath(raw, "qualityGrade")
		return fmt.Sprintf("EUR: %sK BOE, grade: %s. Confidence: %.0f%%.",
			scaledOrNA(eurOil, 1000, 0), strOrUnknown(grade), pct)
	case "risk":
		score, _ := lookupPath(raw, "riskScore")
		return fmt.Sprintf("Overall risk score: %s/100. Confidence: %.0f%%.", strOrNA(score), pct)
	default:
		_ = opts
		return fmt.Sprintf("Analysis complete. Confidence: %.0f%%.", pct)
	}
}

func strOrUnknown(v any) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%v", v)
}

func strOrNA(v any) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%v", v)
}

func scaledOrNA(v any, divisor float64, decimals int) string {
	f, ok := toFloat(v)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.*f", decimals, f/divisor)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(raw map[string]any) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
