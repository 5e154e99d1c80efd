package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwj718/spherov2/pkg/config"
	"github.com/wwj718/spherov2/toy"
)

func TestResolveTargetEmptyMatchesAnyToy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ScanTimeout = 7 * time.Second

	opts, err := resolveTarget("", cfg)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, opts.Duration)
	assert.Empty(t, opts.Name)
	assert.Empty(t, opts.Models)
}

func TestResolveTargetAdvertisedName(t *testing.T) {
	opts, err := resolveTarget("D2-55A2", config.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "D2-55A2", opts.Name)
	assert.Empty(t, opts.Models)
}

func TestResolveTargetModelKeyword(t *testing.T) {
	opts, err := resolveTarget("mini", config.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, opts.Name)
	assert.Equal(t, []toy.Model{toy.ModelMini}, opts.Models)

	// Keywords are case-insensitive.
	opts, err = resolveTarget("R2D2", config.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []toy.Model{toy.ModelR2D2}, opts.Models)
}

func TestResolveTargetUnknown(t *testing.T) {
	_, err := resolveTarget("walkman", config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "walkman"`)
}

func TestDescribeTarget(t *testing.T) {
	assert.Equal(t, "any Sphero toy", describeTarget(""))
	assert.Equal(t, "D2-55A2", describeTarget("D2-55A2"))
}
