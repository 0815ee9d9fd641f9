package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaleyeah/agentkernel/types"
)

func testConfigs() []ServerConfig {
	return []ServerConfig{
		{Name: "geowiz", Domain: "geology", Capabilities: []string{"formation analysis", "basin assessment"}},
		{Name: "econobot", Domain: "economics", Capabilities: []string{"npv analysis"}},
		{Name: "reporter", Domain: "reporting", Capabilities: []string{"report generation"}},
		{Name: "decision", Domain: "decisions", Capabilities: []string{"investment decision"}},
	}
}

func TestInitializeClassifiesToolTypes(t *testing.T) {
	t.Parallel()
	r := New()
	r.Initialize(testConfigs())

	geo, ok := r.GetTool("geowiz.analyze")
	require.True(t, ok)
	assert.Equal(t, types.ToolTypeQuery, geo.Type)
	assert.True(t, geo.ReadOnly)
	assert.False(t, geo.RequiresConfirmation)

	rep, ok := r.GetTool("reporter.analyze")
	require.True(t, ok)
	assert.Equal(t, types.ToolTypeCommand, rep.Type)
	assert.False(t, rep.RequiresConfirmation)

	dec, ok := r.GetTool("decision.analyze")
	require.True(t, ok)
	assert.Equal(t, types.ToolTypeCommand, dec.Type)
	assert.True(t, dec.RequiresConfirmation)
	assert.True(t, dec.Destructive)
}

func TestResolveServer(t *testing.T) {
	t.Parallel()
	r := New()
	r.Initialize(testConfigs())

	t.Run("fully qualified name", func(t *testing.T) {
		server, ok := r.ResolveServer("geowiz.analyze")
		require.True(t, ok)
		assert.Equal(t, "geowiz", server)
	})

	t.Run("bare server name", func(t *testing.T) {
		server, ok := r.ResolveServer("econobot")
		require.True(t, ok)
		assert.Equal(t, "econobot", server)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, ok := r.ResolveServer("nonexistent")
		assert.False(t, ok)
	})
}

func TestFindByCapability(t *testing.T) {
	t.Parallel()
	r := New()
	r.Initialize(testConfigs())

	tools := r.FindByCapability("analysis")
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"geowiz.analyze", "econobot.analyze"}, names)
}

func TestListServersFilter(t *testing.T) {
	t.Parallel()
	r := New()
	r.Initialize(testConfigs())

	servers := r.ListServers(&Filter{ToolType: types.ToolTypeCommand})
	var names []string
	for _, s := range servers {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"reporter", "decision"}, names)
}

func TestSetServerStatus(t *testing.T) {
	t.Parallel()
	r := New()
	r.Initialize(testConfigs())

	r.SetServerStatus("geowiz", types.StatusConnected)
	servers := r.ListServers(nil)
	for _, s := range servers {
		if s.Name == "geowiz" {
			assert.Equal(t, types.StatusConnected, s.Status)
		}
	}

	// Unknown server names are ignored, not errors.
	r.SetServerStatus("nonexistent", types.StatusError)
}
