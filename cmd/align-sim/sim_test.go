package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/monitoring"
	"github.com/banshee-data/geoalign/internal/positioning"
	"github.com/banshee-data/geoalign/internal/units"
)

func TestScenarioValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultScenario().Validate())

	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"no steps", func(s *Scenario) { s.Steps = 0 }},
		{"zero step", func(s *Scenario) { s.Step = 0 }},
		{"bad zone", func(s *Scenario) { s.Zone = 61 }},
		{"zero accuracy", func(s *Scenario) { s.FixAccuracy = 0 }},
		{"empty clouds", func(s *Scenario) { s.CloudPoints = 0 }},
		{"no timeout", func(s *Scenario) { s.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc := DefaultScenario()
			tt.mutate(&sc)
			assert.Error(t, sc.Validate())
			_, err := Run(context.Background(), sc, positioning.DefaultProviderConfig())
			assert.Error(t, err)
		})
	}
}

func TestTerrainMatchesHeightFunction(t *testing.T) {
	t.Parallel()

	sc := DefaultScenario()
	res, err := Run(context.Background(), Scenario{}, positioning.DefaultProviderConfig())
	require.Error(t, err)
	assert.Empty(t, res.Track)

	ref := referenceOrigin(sc)
	grid, err := buildTerrain(sc, ref)
	require.NoError(t, err)

	for _, p := range [][2]float64{{0, 0}, {12.5, -7.25}, {-30, 20}} {
		lat, lon := ref.LocalToLatitude(p[1]), ref.LocalToLongitude(p[0])
		assert.InDelta(t, terrainHeight(p[0], p[1]), grid.InterpolatedAltitude(lat, lon), 0.05, "at %v", p)
	}
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = prev }()

	sc := DefaultScenario()
	sc.Steps = 40

	res, err := Run(context.Background(), sc, positioning.DefaultProviderConfig())
	require.NoError(t, err)

	assert.True(t, res.Estimate.Converged)
	assert.True(t, res.Estimate.Accepted)
	assert.Positive(t, res.Solves)
	assert.Len(t, res.Track, sc.Steps)
	assert.Equal(t, len(res.Observations), res.Estimate.Observations)
	assert.Less(t, math.Abs(res.AzError), units.Radians(1))
	assert.Less(t, res.LocationError, 3.0)
	assert.True(t, res.Location.Filtered)

	kinds := map[alignment.Kind]int{}
	grossFixes := 0
	for _, o := range res.Observations {
		kinds[o.Kind()]++
		if o.Kind() == alignment.KindPosition3D && o.Residuals().Weight < 0.01 {
			grossFixes++
		}
	}
	assert.Equal(t, sc.Steps, kinds[alignment.KindPosition3D])
	assert.Equal(t, sc.Steps, kinds[alignment.KindOrientation])
	assert.Equal(t, sc.CloudPoints*((sc.Steps+sc.CloudEvery-1)/sc.CloudEvery), kinds[alignment.KindPointInTerrain])
	assert.GreaterOrEqual(t, grossFixes, 2, "displaced fixes are down-weighted")

	var out bytes.Buffer
	printSummary(&out, sc, res, units.KPH)
	assert.Contains(t, out.String(), "accepted")
	assert.Contains(t, out.String(), "location error")
	assert.Contains(t, out.String(), units.KPH)

	dir := filepath.Join(t.TempDir(), "plots")
	files, err := writePlots(dir, res)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := DefaultScenario()
	sc.Timeout = 50 * time.Millisecond
	_, err := Run(ctx, sc, positioning.DefaultProviderConfig())
	assert.Error(t, err)
}

func TestGenerateColors(t *testing.T) {
	t.Parallel()

	assert.Nil(t, generateColors(0))
	cols := generateColors(5)
	require.Len(t, cols, 5)
	assert.NotEqual(t, cols[0], cols[1])

	r, g, b := hslToRGB(0, 0, 0.5)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
	r, _, _ = hslToRGB(0, 1, 0.5)
	assert.Equal(t, uint8(255), r)
}
