package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaleyeah/agentkernel/types"
)

func TestLogRequestAndReadBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := New(dir, true)

	now := time.Now().UTC()
	logger.LogRequest(types.AuditEntry{
		Tool:       "geowiz.analyze",
		Parameters: map[string]any{"basin": "Permian", "apiKey": "shh"},
		UserID:     "u1",
		SessionID:  "s1",
		Role:       types.RoleAnalyst,
		Timestamp:  now,
	})

	entries, err := logger.GetEntries(now.Format("2006-01-02"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditRequest, entries[0].Action)
	assert.Equal(t, "geowiz.analyze", entries[0].Tool)
}

func TestRedactionMasksSensitiveKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := New(dir, true)

	now := time.Now().UTC()
	logger.LogRequest(types.AuditEntry{
		Tool:       "decision.analyze",
		Parameters: map[string]any{"apiKey": "secret-value", "basin": "Permian"},
		Timestamp:  now,
	})

	entries, err := logger.GetEntries(now.Format("2006-01-02"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, redactedValue, entries[0].Parameters["apiKey"])
	assert.Equal(t, "Permian", entries[0].Parameters["basin"])
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := New(dir, false)

	logger.LogRequest(types.AuditEntry{Tool: "geowiz.analyze"})

	entries, err := logger.GetEntries("")
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestGetEntriesMissingDateReturnsNil(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := New(dir, true)

	entries, err := logger.GetEntries("2000-01-01")
	require.NoError(t, err)
	assert.Nil(t, entries)
}
