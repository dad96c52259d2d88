package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spksound/syncroom/internal/types"
)

func TestGain(t *testing.T) {
	gc := DefaultGainConfig()

	t.Run("full gain at zero distance", func(t *testing.T) {
		assert.Equal(t, 1.0, gc.Gain(0), "expected gain 1.0 at the source")
	})

	t.Run("floor at and beyond the radius", func(t *testing.T) {
		assert.Equal(t, gc.Floor, gc.Gain(gc.Radius), "expected floor at the radius")
		assert.Equal(t, gc.Floor, gc.Gain(gc.Radius*3), "expected floor beyond the radius")
	})

	t.Run("monotonically non-increasing in distance", func(t *testing.T) {
		prev := gc.Gain(0)
		for d := 0.25; d <= gc.Radius*2; d += 0.25 {
			g := gc.Gain(d)
			assert.LessOrEqualf(t, g, prev, "gain increased between %v and %v", d-0.25, d)
			prev = g
		}
	})

	t.Run("quadratic falloff decays slower near the source", func(t *testing.T) {
		quad := GainConfig{Radius: 5, Floor: 0.05, Exponent: 2}
		lin := GainConfig{Radius: 5, Floor: 0.05, Exponent: 1}

		d := 1.0
		assert.Greater(t, quad.Gain(d), lin.Gain(d), "expected quadratic curve above linear near the source")
	})

	t.Run("floor is configuration", func(t *testing.T) {
		gc := GainConfig{Radius: 5, Floor: 0.5, Exponent: 1}
		assert.Equal(t, 0.5, gc.Gain(100), "expected configured floor")
	})
}

func TestGains(t *testing.T) {
	clients := []types.Client{
		{Id: "a", Position: types.Vec2{X: 0, Y: 0}},
		{Id: "b", Position: types.Vec2{X: 5, Y: 0}},
		{Id: "c", Position: types.Vec2{X: 1, Y: 0}},
	}
	gc := DefaultGainConfig()

	t.Run("enabled computes per-listener gain", func(t *testing.T) {
		gains := gc.Gains(clients, types.Vec2{}, true)
		assert.Len(t, gains, 3, "expected a gain per client")
		assert.Equal(t, 1.0, gains["a"], "listener at the source hears full gain")
		assert.Equal(t, gc.Floor, gains["b"], "listener at the radius hears the floor")
		assert.InDelta(t, 0.8, gains["c"], 1e-9, "listener one unit out hears linear falloff")
	})

	t.Run("disabled is uniformly full gain", func(t *testing.T) {
		gains := gc.Gains(clients, types.Vec2{X: 100, Y: 100}, false)
		for id, g := range gains {
			assert.Equalf(t, 1.0, g, "client %s should hear full gain with spatial mode off", id)
		}
	})
}
