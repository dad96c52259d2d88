package spatial

import (
	"math"

	"github.com/spksound/syncroom/internal/types"
)

// GainConfig makes the falloff shape and floor explicit configuration. The
// formula has never been stable across deployments (linear and quadratic
// falloffs, floors between 0.05 and 0.5 have all shipped), so nothing here
// is a hidden constant.
type GainConfig struct {
	// Radius is the distance at which gain reaches the floor.
	Radius float64
	// Floor is the minimum gain any listener ever hears.
	Floor float64
	// Exponent selects the falloff curve: 1 is linear, 2 quadratic.
	Exponent float64
}

func DefaultGainConfig() GainConfig {
	return GainConfig{
		Radius:   DefaultRadius,
		Floor:    0.1,
		Exponent: 1,
	}
}

// Gain maps a listener-to-source distance to a playback gain in
// [Floor, 1]. Gain is 1 at distance zero and decays monotonically to the
// floor at Radius and beyond.
func (gc GainConfig) Gain(d float64) float64 {
	if d <= 0 {
		return 1.0
	}

	g := 1.0 - math.Pow(d/gc.Radius, gc.Exponent)
	return math.Max(gc.Floor, g)
}

// Gains computes the gain each client hears from the given source position.
// When spatial mode is disabled every listener hears uniform full gain.
func (gc GainConfig) Gains(clients []types.Client, source types.Vec2, enabled bool) map[string]float64 {
	gains := make(map[string]float64, len(clients))
	for _, c := range clients {
		if !enabled {
			gains[c.Id] = 1.0
			continue
		}
		gains[c.Id] = gc.Gain(Distance(c.Position, source))
	}
	return gains
}
