package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.85, cfg.Thresholds.Verified)
	assert.Equal(t, 0.70, cfg.Thresholds.Partial)
	assert.Equal(t, 40, cfg.Thresholds.CoverageWarn)
	assert.Equal(t, RiskHigh, cfg.Risk.Defaults[ClaimCurrency])
	assert.Equal(t, RiskLow, cfg.Risk.Defaults[ClaimDate])
}

func TestConfig_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"partial above verified", func(c *Config) { c.Thresholds.Partial = 0.9 }},
		{"verified above one", func(c *Config) { c.Thresholds.Verified = 1.2 }},
		{"zero workers", func(c *Config) { c.Retrieval.Workers = 0 }},
		{"unknown backend", func(c *Config) { c.Retrieval.Backend = "pinecone" }},
		{"weaviate without url", func(c *Config) { c.Retrieval.Backend = "weaviate" }},
		{"badger without path", func(c *Config) { c.Audit.Backend = "badger" }},
		{"bad risk level", func(c *Config) { c.Risk.Defaults[ClaimNumber] = "SEVERE" }},
		{"bad signal mode", func(c *Config) { c.Gate.SignalMode = "lazy" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGateState_Exportable(t *testing.T) {
	assert.True(t, StateAllow.Exportable())
	assert.True(t, StateWarnAdvisory.Exportable())
	assert.True(t, StateWarnAcknowledged.Exportable())
	assert.False(t, StateBlock.Exportable())
	assert.False(t, StateWarnNeedsAttestation.Exportable())
	assert.False(t, StatePending.Exportable())
}

func TestClaim_Key_NormalizesValue(t *testing.T) {
	a := Claim{SectionID: "s1", Type: ClaimCurrency, Value: "$500,000"}
	b := Claim{SectionID: "s1", Type: ClaimCurrency, Value: " $500,000 "}
	assert.Equal(t, a.Key(), b.Key())

	c := Claim{SectionID: "s2", Type: ClaimCurrency, Value: "$500,000"}
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestPlaceholderType_Rules(t *testing.T) {
	typ, ok := ParsePlaceholderType("MISSING_DATA")
	require.True(t, ok)
	assert.True(t, typ.Blocking())
	assert.False(t, typ.Dismissible())

	_, ok = ParsePlaceholderType("missing_data")
	assert.False(t, ok)

	assert.True(t, PlaceholderUserInputRequired.Dismissible())
	assert.False(t, PlaceholderUserInputRequired.Blocking())
}
