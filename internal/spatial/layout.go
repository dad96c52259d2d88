package spatial

import (
	"math"

	"github.com/spksound/syncroom/internal/types"
)

// DefaultRadius is the listener circle radius used when no radius is
// configured.
const DefaultRadius = 5.0

// Layout assigns n listeners evenly spaced positions on a circle of the
// given radius, centered on the origin. Listener i sits at angle 2π·i/n, so
// the result is fully determined by the listener ordering.
func Layout(n int, radius float64) []types.Vec2 {
	if n <= 0 {
		return nil
	}

	positions := make([]types.Vec2, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		positions[i] = types.Vec2{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
		}
	}
	return positions
}

// Orbit returns the position of a source orbiting the origin at constant
// angular velocity. The step wraps at period ticks, so a full revolution
// takes exactly period steps and the motion is periodic.
func Orbit(step, period int, radius float64) types.Vec2 {
	if period <= 0 {
		period = 1
	}
	angle := 2 * math.Pi * float64(step%period) / float64(period)
	return types.Vec2{
		X: radius * math.Cos(angle),
		Y: radius * math.Sin(angle),
	}
}

// Distance is the Euclidean distance between two points.
func Distance(a, b types.Vec2) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
