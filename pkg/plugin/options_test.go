package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
)

type testOptions struct {
	Path      string        `mapstructure:"path"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func TestDecodeOptions(t *testing.T) {
	opts := testOptions{Path: "default", BatchSize: 1}
	err := DecodeOptions(map[string]any{
		"path":       "out.csv",
		"batch_size": "100",
		"timeout":    "2s",
	}, &opts)
	require.NoError(t, err)
	assert.Equal(t, testOptions{Path: "out.csv", BatchSize: 100, Timeout: 2 * time.Second}, opts)
}

func TestDecodeOptionsKeepsDefaults(t *testing.T) {
	opts := testOptions{Path: "default"}
	require.NoError(t, DecodeOptions(nil, &opts))
	assert.Equal(t, "default", opts.Path)
}

func TestDecodeOptionsUnknownKey(t *testing.T) {
	var opts testOptions
	err := DecodeOptions(map[string]any{"pth": "typo"}, &opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
