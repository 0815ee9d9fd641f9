// Command demo wires a Kernel against a tiny in-process stub transport that
// fabricates worker responses, exercising discovery, a single call, and the
// quick_screen bundle end to end.
package main

import (
	"context"
	"fmt"
	"time"

	agentkernel "github.com/shaleyeah/agentkernel"
	"github.com/shaleyeah/agentkernel/config"
	"github.com/shaleyeah/agentkernel/executor"
	"github.com/shaleyeah/agentkernel/registry"
	"github.com/shaleyeah/agentkernel/telemetry"
	"github.com/shaleyeah/agentkernel/types"
)

var servers = []registry.ServerConfig{
	{Name: "geowiz", Description: "Geological formation analysis", Persona: "The Geologist", Domain: "geology", Capabilities: []string{"formation analysis", "basin assessment"}},
	{Name: "econobot", Description: "Economic viability analysis", Persona: "The Economist", Domain: "economics", Capabilities: []string{"npv", "irr analysis"}},
	{Name: "curve-smith", Description: "Commodity price curve analysis", Persona: "The Analyst", Domain: "markets", Capabilities: []string{"price curve analysis"}},
	{Name: "risk-analysis", Description: "Investment risk scoring", Persona: "The Risk Officer", Domain: "risk", Capabilities: []string{"risk scoring"}},
	{Name: "market", Description: "Market condition analysis", Persona: "The Strategist", Domain: "markets", Capabilities: []string{"market outlook"}},
	{Name: "research", Description: "Supporting literature research", Persona: "The Researcher", Domain: "research", Capabilities: []string{"literature search"}},
	{Name: "reporter", Description: "Due diligence report generation", Persona: "The Writer", Domain: "reporting", Capabilities: []string{"report generation"}},
	{Name: "decision", Description: "Investment decision recording", Persona: "The Executive", Domain: "decisions", Capabilities: []string{"investment decision"}},
}

func stubTransport(_ context.Context, req types.ToolRequest) (map[string]any, error) {
	time.Sleep(10 * time.Millisecond)
	return map[string]any{
		"confidence": 82,
		"server":     req.Tool,
		"summary":    fmt.Sprintf("stub result for %s", req.Tool),
	}, nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(".env", nil)
	if err != nil {
		panic(err)
	}

	var opts []agentkernel.Option
	if cfg.Telemetry.Enabled {
		opts = append(opts,
			agentkernel.WithLogger(telemetry.NewClueLogger()),
			agentkernel.WithMetrics(telemetry.NewClueMetrics()),
			agentkernel.WithTracer(telemetry.NewClueTracer()),
		)
	}

	k := agentkernel.New(cfg, opts...)
	k.Initialize(servers, executor.TransportFunc(stubTransport))

	sessionID := k.CreateSession(nil, &types.Preferences{DefaultBasin: "Permian", RiskTolerance: "moderate"})
	fmt.Println("session:", sessionID)

	for _, s := range k.ListServers(nil) {
		fmt.Printf("server: %-16s domain=%-10s tools=%d\n", s.Name, s.Domain, s.ToolCount)
	}

	resp, err := k.CallTool(ctx, types.ToolRequest{Tool: "geowiz.analyze", Args: map[string]any{"basin": "Permian"}, SessionID: sessionID})
	if err != nil {
		panic(err)
	}
	fmt.Println("single call:", resp.Summary)

	result, err := k.QuickScreen(ctx, map[string]any{"basin": "Permian"}, sessionID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("quick_screen: %d steps, completeness=%.0f%%\n", len(result.StepResults), result.Completeness)
}
