package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeSteer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"centre", 0, 0},
		{"right", 0.5, 0.55 * math.Tan(0.55)},
		{"left", -0.5, -0.55 * math.Tan(0.55)},
		{"full lock", 1, 0.55 * math.Tan(1.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShapeSteer(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestShapeSteer_Symmetric(t *testing.T) {
	t.Parallel()
	for r := -1.0; r <= 1.0; r += 0.125 {
		pos, err := ShapeSteer(r)
		require.NoError(t, err)
		neg, err := ShapeSteer(-r)
		require.NoError(t, err)
		assert.InDelta(t, -pos, neg, 1e-12, "r=%v", r)
	}
}

func TestShapeSteer_Invalid(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{math.NaN(), math.Inf(1), 1.5, -1.5} {
		_, err := ShapeSteer(r)
		assert.ErrorIs(t, err, ErrInvalidAxisRange, "r=%v", r)
	}
}

func TestShapePedal(t *testing.T) {
	t.Parallel()

	released, err := ShapePedalRaw(1)
	require.NoError(t, err)
	assert.Less(t, released, 0.0, "released pedal sits just below zero")

	floored, err := ShapePedalRaw(-1)
	require.NoError(t, err)
	assert.Greater(t, floored, 1.0, "floored pedal sits just above one")

	v, err := ShapePedal(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = ShapePedal(-1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	// monotonic: pressing further never reduces the command
	prev := -1.0
	for r := 1.0; r >= -1.0; r -= 0.05 {
		v, err := ShapePedalRaw(r)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, prev, "r=%v", r)
		prev = v
	}
}

func TestShapePedal_Invalid(t *testing.T) {
	t.Parallel()
	// -0.7*r + 1.4 <= 0 when r >= 2
	for _, r := range []float64{2, 3.5, math.NaN()} {
		_, err := ShapePedal(r)
		assert.ErrorIs(t, err, ErrInvalidAxisRange, "r=%v", r)
	}
}

func TestShape_JoinsErrors(t *testing.T) {
	t.Parallel()

	out, err := Shape(Axes{Steer: math.NaN(), Throttle: 1, Brake: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAxisRange)
	assert.Contains(t, err.Error(), "brake")
	assert.Equal(t, 0.0, out.Steer)
	assert.Equal(t, 0.0, out.Brake)
}

func TestVehicleCommandClamp(t *testing.T) {
	t.Parallel()
	got := VehicleCommand{Steer: 2.4, Throttle: -0.1, Brake: 1.3}.Clamp()
	assert.Equal(t, VehicleCommand{Steer: 1, Throttle: 0, Brake: 1}, got)
}

func TestParseTriggerKind(t *testing.T) {
	t.Parallel()
	for _, k := range []TriggerKind{TriggerSteer, TriggerBrake} {
		got, err := ParseTriggerKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseTriggerKind("horn")
	assert.Error(t, err)
}
