package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/pv"
)

func TestLoadWaveform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("points: [0, 0.5, 0, -0.5]\n"), 0o600))

	points, err := loadWaveform(path, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 0, -0.5}, points)

	_, err = loadWaveform(path, 3)
	assert.ErrorContains(t, err, "dac.max_len is 3")

	require.NoError(t, os.WriteFile(path, []byte("points: []\n"), 0o600))
	_, err = loadWaveform(path, 4)
	assert.Error(t, err)
}

func TestFeedFailsOnOversizedWaveform(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := feedWaveform(ctx, pv.NewCell(true), pv.NewArray[float64](2), []float64{1, 2, 3}, zap.NewNop())
	assert.ErrorIs(t, err, pv.ErrTooLong)
}

func TestFeedPublishesOnRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	refill := pv.NewCell(true)
	array := pv.NewArray[float64](4)
	go feedWaveform(ctx, refill, array, []float64{1, 2}, zap.NewNop())

	got, err := array.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)
	array.Accept()

	refill.Store(false)
	refill.Store(true)
	got, err = array.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)
	array.Accept()
}
