package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extraction.ConsensusWeights = ConsensusWeights{Proposer: 0.5, Validator: 0.3, ExtractionQuality: 0.4}
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidate_RejectsSameProviderForBothSlots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extraction.ValidatorProvider = cfg.Extraction.ProposerProvider
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "distinct vendor families")
}

func TestValidate_RejectsNonPositiveMaxLoops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extraction.MaxLoops = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_loops")
}

func TestResolveAPIKey_PrefersEnvVarOverConfigured(t *testing.T) {
	t.Setenv("EXTRACTOR_TEST_API_KEY", "env-value")
	assert.Equal(t, "env-value", ResolveAPIKey("EXTRACTOR_TEST_API_KEY", "configured-value"))
}

func TestResolveAPIKey_FallsBackToConfiguredWhenEnvUnset(t *testing.T) {
	os.Unsetenv("EXTRACTOR_UNSET_API_KEY")
	assert.Equal(t, "configured-value", ResolveAPIKey("EXTRACTOR_UNSET_API_KEY", "configured-value"))
}

func TestLoadConfig_ParsesTOMLAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[extraction]
quality_threshold = 85
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 85, cfg.Extraction.QualityThreshold)
	// untouched defaults survive partial TOML overrides
	assert.Equal(t, 3, cfg.Extraction.MaxLoops)
}

func TestLoadConfig_InvalidWeightsFailValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[extraction.consensus_weights]
proposer = 0.9
validator = 0.9
extraction_quality = 0.9
`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
