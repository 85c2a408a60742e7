package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/proposalgate/internal/model"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetEnvPrefix("PROPOSALGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, model.DefaultConfig())
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	want := model.DefaultConfig()
	assert.Equal(t, want.Thresholds, cfg.Thresholds)
	assert.Equal(t, want.Storage, cfg.Storage)
	assert.Equal(t, model.DefaultRiskTable(), cfg.Risk.Defaults)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PROPOSALGATE_RETRIEVAL_TOP_K", "7")
	t.Setenv("PROPOSALGATE_STORAGE_DRIVER", "memory")
	t.Setenv("PROPOSALGATE_LLM_API_KEY", "secret")

	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
}

func TestLoadConfig_RiskTableFromFile(t *testing.T) {
	v := newTestViper(t)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
risk:
  defaults:
    NUMBER: high
    DATE: MEDIUM
`)))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, cfg.Risk.Defaults[model.ClaimNumber])
	assert.Equal(t, model.RiskMedium, cfg.Risk.Defaults[model.ClaimDate])
	assert.Equal(t, model.RiskHigh, cfg.Risk.Defaults[model.ClaimCurrency])
	assert.Len(t, cfg.Risk.Defaults, len(model.DefaultRiskTable()))
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("PROPOSALGATE_STORAGE_DRIVER", "postgres")

	_, err := loadConfig(newTestViper(t))
	assert.Error(t, err)
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig().Retrieval.TopK, cfg.Retrieval.TopK)
	assert.Equal(t, model.DefaultRiskTable(), cfg.Risk.Defaults)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"p1", "p1"},
		{"org/p 1", "org_p-1"},
		{"a:b*c?", "a_b_c_"},
		{"..", "_"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func TestReadProposalIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("# batch\np1\n\n  p2  \np1\n"), 0644))

	ids, err := readProposalIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0644))
	_, err = readProposalIDs(empty)
	assert.Error(t, err)
}

func TestReadAttestText(t *testing.T) {
	t.Cleanup(func() { attestText, attestTextFile = "", "" })

	attestText, attestTextFile = "I confirm", ""
	text, err := readAttestText(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "I confirm", text)

	attestText, attestTextFile = "", "-"
	text, err = readAttestText(strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	attestText, attestTextFile = "a", "b"
	_, err = readAttestText(strings.NewReader(""))
	assert.Error(t, err)

	attestText, attestTextFile = "", ""
	_, err = readAttestText(strings.NewReader(""))
	assert.Error(t, err)
}
