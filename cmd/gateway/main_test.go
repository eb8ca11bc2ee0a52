package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuthorizeCmd_Approved(t *testing.T) {
	out, err := execute(t, "authorize", "--agent", "agent_ai_2026_001", "--limit", "250.00", "--category", "restaurants")
	require.NoError(t, err)

	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Authorized", resp["status"])
	assert.Equal(t, "restaurants", resp["merchant_constraints"])
	assert.True(t, strings.HasPrefix(resp["consent_id"], "consent_tkn_"))
}

func TestAuthorizeCmd_Denied(t *testing.T) {
	out, err := execute(t, "authorize", "--agent", "a", "--limit", "600", "--category", "restaurants", "--currency", "eur")
	require.ErrorIs(t, err, errRejected)

	assert.Contains(t, out, `"LIMIT_EXCEEDED"`)
	assert.Contains(t, out, "over 500 EUR")
}

func TestAuthorizeCmd_InvalidLimit(t *testing.T) {
	out, err := execute(t, "authorize", "--agent", "a", "--limit", "lots", "--category", "x")
	require.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, `"INVALID_INPUT"`)
	assert.Contains(t, out, "spending_limit")
}

func TestDecideCmds_RejectOutOfBoundsAmounts(t *testing.T) {
	for _, raw := range []string{"1e-50000000", "1e3000000"} {
		out, err := execute(t, "authorize", "--agent", "a", "--limit", raw, "--category", "x")
		require.ErrorIs(t, err, errRejected, raw)
		assert.Contains(t, out, `"INVALID_INPUT"`)
		assert.Contains(t, out, "must have at most 18 integer digits and 8 decimal places")
		assert.Less(t, len(out), 1024)

		out, err = execute(t, "enrich", "--mcc", "5411", "--amount", raw, "--description", "x")
		require.ErrorIs(t, err, errRejected, raw)
		assert.Contains(t, out, `"amount"`)
		assert.Less(t, len(out), 1024)
	}
}

func TestEnrichCmd(t *testing.T) {
	out, err := execute(t, "enrich", "--mcc", "5541", "--amount", "50", "--description", "Fuel")
	require.NoError(t, err)

	assert.Contains(t, out, `"carbon_footprint_kg": 105.00`)
	assert.Contains(t, out, "Fuel (Gas Stations) contributed 105.00kg of CO2 to your monthly limit.")
}

func TestEnrichCmd_MissingFields(t *testing.T) {
	out, err := execute(t, "enrich", "--mcc", "5541")
	require.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "amount")
	assert.Contains(t, out, "description")
}

func TestConfigFileOverridesPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
guardrail:
  max_auto_approve: 100
  prohibited_categories: ["tobacco"]
carbon:
  fallback_name: Other
  fallback_factor: 0.5
  factors:
    "7011": {name: Hotels, factor: 0.3}
`), 0o600))

	_, err := execute(t, "--config", path, "authorize", "--agent", "a", "--limit", "150", "--category", "books")
	require.ErrorIs(t, err, errRejected)

	out, err := execute(t, "--config", path, "authorize", "--agent", "a", "--limit", "50", "--category", "Tobacco")
	require.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "GOVERNANCE_VIOLATION")

	out, err = execute(t, "--config", path, "enrich", "--mcc", "7011", "--amount", "100", "--description", "Stay")
	require.NoError(t, err)
	assert.Contains(t, out, `"merchant_category": "Hotels"`)
	assert.Contains(t, out, `"carbon_footprint_kg": 30.00`)
}

func TestAgentsCmd_RequiresRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	_, err := execute(t, "agents", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}
