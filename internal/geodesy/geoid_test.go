package geodesy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantModels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 39.5, ConstantGeoid(39.5).GeoidHeight(60, 10))
	assert.Equal(t, 0.05, ConstantDeclination(0.05).Declination(60, 10, 0, time.Time{}))
}

func TestGeoidGrid(t *testing.T) {
	t.Parallel()

	// Rows from the south: lat 59, 60, 61; columns lon 10, 11.
	values := []float32{
		38, 40,
		42, 44,
		GeoidNoValue, 46,
	}
	g, err := NewGeoidGrid(59, 61, 10, 11, 3, 2, values, 40)
	require.NoError(t, err)

	t.Run("reproduces nodes", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 38, g.GeoidHeight(59, 10), 1e-9)
		assert.InDelta(t, 44, g.GeoidHeight(60, 11), 1e-9)
	})

	t.Run("interpolates bilinearly", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 41, g.GeoidHeight(59.5, 10.5), 1e-9)
		assert.InDelta(t, 39, g.GeoidHeight(59, 10.5), 1e-9)
	})

	t.Run("falls back outside the grid", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 40.0, g.GeoidHeight(58, 10.5))
		assert.Equal(t, 40.0, g.GeoidHeight(60, 12))
	})

	t.Run("falls back next to missing nodes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 40.0, g.GeoidHeight(60.5, 10.5))
		// Weight on the missing node is zero along the east edge.
		assert.InDelta(t, 45, g.GeoidHeight(60.5, 11), 1e-9)
	})
}

func TestNewGeoidGrid_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewGeoidGrid(59, 61, 10, 11, 2, 2, []float32{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrGeoidGridShape)

	_, err = NewGeoidGrid(59, 61, 10, 11, 1, 2, []float32{1, 2}, 0)
	assert.Error(t, err)

	_, err = NewGeoidGrid(61, 59, 10, 11, 2, 2, []float32{1, 2, 3, 4}, 0)
	assert.Error(t, err)
}
