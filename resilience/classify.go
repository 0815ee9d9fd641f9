// Package resilience classifies worker failures, attaches recovery guidance,
// computes retry backoff with jitter, and evaluates graceful-degradation
// thresholds across scatter-gather results.
package resilience

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shaleyeah/agentkernel/types"
)

// The pattern tables below are grouped by precedence band (auth, then user
// action, then retryable, then permanent); within a band the first matching
// substring wins, and bands are checked in order so e.g. "unauthorized"
// never falls through to a retryable match.
var authPatterns = []string{
	"unauthorized", "forbidden", "401", "403", "api key", "apikey",
	"authentication", "credentials", "access denied", "permission",
	"token expired",
}

var userActionPatterns = []string{
	"file not found", "filenotfound", "enoent", "missing data", "missing file",
	"missing input", "no data", "not provided", "upload", "please provide",
}

var retryablePatterns = []string{
	"rate limit", "429", "too many requests",
	"timeout", "timed out", "etimedout",
	"econnreset", "econnrefused", "econnaborted", "enotfound", "enetunreach",
	"socket hang up",
	"network",
	"temporarily unavailable", "service unavailable", "503", "502", "504",
	"retry",
}

var permanentPatterns = []string{
	"invalid", "validation", "schema", "malformed", "unsupported",
	"not found", "does not exist", "unknown tool", "400",
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ClassifyError infers an ErrorType from a raw worker error message, in
// precedence order: auth required, then user action, then retryable, then
// permanent. Unknown shapes default to Retryable, matching the kernel's
// bias toward retrying over silently failing.
func ClassifyError(message string) types.ErrorType {
	lower := strings.ToLower(message)
	switch {
	case matchesAny(lower, authPatterns):
		return types.ErrorAuthRequired
	case matchesAny(lower, userActionPatterns):
		return types.ErrorUserAction
	case matchesAny(lower, retryablePatterns):
		return types.ErrorRetryable
	case matchesAny(lower, permanentPatterns):
		return types.ErrorPermanent
	default:
		return types.ErrorRetryable
	}
}

// recoveryGuide is one entry of the fixed per-server recovery advice table.
// Only the alternative tools are read; recovery steps come from
// recoveryStep. A server with no entry gets no alternatives.
type recoveryGuide struct {
	steps       []string
	alternative []string
}

var recoveryGuides = map[string]recoveryGuide{
	"geowiz":         {alternative: []string{"research.analyze"}},
	"econobot":       {alternative: []string{"market.analyze", "research.analyze"}},
	"curve-smith":    {alternative: []string{"econobot.analyze", "market.analyze"}},
	"risk-analysis":  {alternative: []string{"research.analyze"}},
	"market":         {alternative: []string{"research.analyze", "econobot.analyze"}},
	"research":       {alternative: []string{"geowiz.analyze", "econobot.analyze"}},
	"legal":          {alternative: []string{"title.analyze"}},
	"title":          {alternative: []string{"legal.analyze"}},
	"drilling":       {alternative: []string{"infrastructure.analyze"}},
	"infrastructure": {alternative: []string{"drilling.analyze"}},
	"development":    {alternative: []string{"infrastructure.analyze"}},
	"test":           {},
	"reporter":       {},
	"decision":       {alternative: []string{"reporter.analyze"}},
}

// AddRecoveryGuide returns a fixed recovery step per error type (the
// retryable step names the owning server), plus that server's alternative-tools list
// (empty for servers with no meaningful overlap, e.g. test and reporter).
func AddRecoveryGuide(errType types.ErrorType, toolName string) (steps []string, alternatives []string) {
	server := serverOf(toolName)
	steps = append(steps, recoveryStep(errType, server))
	alternatives = append(alternatives, recoveryGuides[server].alternative...)
	return steps, alternatives
}

func recoveryStep(errType types.ErrorType, server string) string {
	switch errType {
	case types.ErrorAuthRequired:
		return "Re-authenticate and retry the request."
	case types.ErrorUserAction:
		return "Correct the request arguments and resubmit."
	case types.ErrorPermanent:
		return "This operation is not expected to succeed on retry; check the tool name and its prerequisites."
	default:
		return "If " + server + " remains unavailable, consider alternative tools."
	}
}

func serverOf(toolName string) string {
	if idx := strings.Index(toolName, "."); idx >= 0 {
		return toolName[:idx]
	}
	return toolName
}

// ClassifyErrorDetail builds a fully populated ErrorDetail from a raw
// message and the tool that produced it.
func ClassifyErrorDetail(toolName, message, reason string) *types.ErrorDetail {
	errType := ClassifyError(message)
	steps, alternatives := AddRecoveryGuide(errType, toolName)

	detail := &types.ErrorDetail{
		Type:             errType,
		Message:          message,
		Reason:           reason,
		RecoverySteps:    steps,
		AlternativeTools: alternatives,
	}
	if errType == types.ErrorRetryable {
		detail.RetryAfterMs = BaseDelayFor(message, DefaultBackoffConfig().BaseDelay).Milliseconds()
	}
	return detail
}

// BaseMultiplierFor returns the per-error-type multiplier applied to a
// configured base delay: 1x by default, 2x for timeout-like failures, 5x
// for rate-limit-like failures.
func BaseMultiplierFor(message string) float64 {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return 5
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"), strings.Contains(lower, "etimedout"):
		return 2
	default:
		return 1
	}
}

// BaseDelayFor scales configuredBase (e.g. BackoffConfig.BaseDelay) by the
// per-error-type multiplier for message. The executor's backoff then
// multiplies the result by 2^attempt plus jitter.
func BaseDelayFor(message string, configuredBase time.Duration) time.Duration {
	return time.Duration(float64(configuredBase) * BaseMultiplierFor(message))
}

// DegradedResponse is the outcome of evaluating a partial result set against
// the full set of tools that were expected to contribute.
type DegradedResponse struct {
	Completeness float64 // percentage, 0-100
	Degraded     bool
	MissingTools []string
	Useful       bool   // true when completeness >= 50
	Suggestion   string // human-readable guidance for the agent
	// Alternatives maps each missing tool to the alternative tools a caller
	// might try instead, per recoveryGuides. Absent when a missing tool has
	// no meaningful overlap (e.g. test, reporter).
	Alternatives map[string][]string
}

// HandleDegradation partitions results into successes and missing tools,
// computes completeness as a percentage, and builds suggested next steps:
// "partial results may suffice" at or above 50% completeness, "recommend
// retrying" below it, plus alternative tools for each missing entry.
func HandleDegradation(results map[string]*types.AgentOSResponse, expectedTools []string) DegradedResponse {
	if len(expectedTools) == 0 {
		return DegradedResponse{Completeness: 100, Useful: true, Suggestion: "All requested analyses completed."}
	}

	var missing []string
	alternatives := make(map[string][]string)
	succeeded := 0
	for _, tool := range expectedTools {
		if r, ok := results[tool]; ok && r != nil && r.Success {
			succeeded++
			continue
		}
		missing = append(missing, tool)
		if _, alts := AddRecoveryGuide(types.ErrorRetryable, tool); len(alts) > 0 {
			alternatives[tool] = alts
		}
	}

	completeness := math.Round(float64(succeeded) / float64(len(expectedTools)) * 100)
	useful := completeness >= 50

	suggestion := "Partial results may suffice."
	if !useful {
		suggestion = "Completeness is too low to rely on; recommend retrying the missing analyses."
	}
	for _, tool := range missing {
		if alts, ok := alternatives[tool]; ok {
			suggestion += fmt.Sprintf(" For %s, consider %s.", tool, strings.Join(alts, ", "))
		}
	}

	return DegradedResponse{
		Completeness: completeness,
		Degraded:     succeeded < len(expectedTools),
		MissingTools: missing,
		Useful:       useful,
		Suggestion:   suggestion,
		Alternatives: alternatives,
	}
}
