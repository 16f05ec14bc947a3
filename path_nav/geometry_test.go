package path_nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var samplePoints = []Waypoint{
	{0, 0}, {1, 0}, {-3.5, 2.25}, {10, 10}, {-7, -11}, {1e-9, -1e-9}, {123.4, -56.7},
}

var sampleAngles = []float64{
	0, math.Pi, -math.Pi, math.Pi / 2, -math.Pi / 2, 3 * math.Pi, -3 * math.Pi,
	7.5, -7.5, 100, -100, 2 * math.Pi, -2 * math.Pi, 1e-12, math.Pi + 1e-9,
}

func TestDistance_SymmetricAndZeroOnSelf(t *testing.T) {
	for _, a := range samplePoints {
		assert.Equal(t, 0.0, Distance(a, a))
		for _, b := range samplePoints {
			assert.Equal(t, Distance(a, b), Distance(b, a), "%v %v", a, b)
		}
	}
	assert.InDelta(t, 5.0, Distance(Waypoint{0, 0}, Waypoint{3, 4}), 1e-12)
}

func TestDistance_PoseAndWaypoint(t *testing.T) {
	p := Pose{X: 1, Y: 1, Heading: 2}
	assert.InDelta(t, math.Sqrt2, Distance(p, Waypoint{2, 2}), 1e-12)
}

func TestBearing_WorldFrame(t *testing.T) {
	origin := Pose{X: 0, Y: 0, Heading: 1.0}
	assert.InDelta(t, 0, Bearing(origin, Waypoint{1, 0}), 1e-12)
	assert.InDelta(t, math.Pi/2, Bearing(origin, Waypoint{0, 1}), 1e-12)
	assert.InDelta(t, -math.Pi/2, Bearing(origin, Waypoint{0, -1}), 1e-12)
	assert.Equal(t, math.Pi, Bearing(origin, Waypoint{-1, 0}))
}

func TestBearing_ScaleInvariant(t *testing.T) {
	from := Pose{X: 2, Y: -1}
	deltas := []Waypoint{{1, 0}, {-1, 1}, {3, -4}, {-0.5, -0.25}, {0, 2}}
	for _, d := range deltas {
		want := Bearing(from, Waypoint{from.X + d.X, from.Y + d.Y})
		for _, k := range []float64{0.001, 0.5, 2, 17, 1e6} {
			got := Bearing(from, Waypoint{from.X + k*d.X, from.Y + k*d.Y})
			assert.InDelta(t, want, got, 1e-9, "delta %v scale %v", d, k)
		}
	}
}

func TestNormalizeAngle_RangeAndIdempotent(t *testing.T) {
	for _, a := range sampleAngles {
		n := NormalizeAngle(a)
		assert.Greater(t, n, -math.Pi, "angle %v", a)
		assert.LessOrEqual(t, n, math.Pi, "angle %v", a)
		assert.Equal(t, n, NormalizeAngle(n), "angle %v", a)
		assert.InDelta(t, 0, math.Sin(n)-math.Sin(a), 1e-9)
		assert.InDelta(t, 0, math.Cos(n)-math.Cos(a), 1e-9)
	}
	assert.Equal(t, math.Pi, NormalizeAngle(-math.Pi))
	assert.Equal(t, 0.0, NormalizeAngle(0))
}

func TestSteeringError_ShortestTurn(t *testing.T) {
	for _, h := range sampleAngles {
		for _, b := range sampleAngles {
			e := SteeringError(NormalizeAngle(h), NormalizeAngle(b))
			assert.LessOrEqual(t, math.Abs(e), math.Pi, "heading %v bearing %v", h, b)
		}
	}

	// Heading just below +pi, target just above -pi: turn left a little.
	e := SteeringError(math.Pi-0.1, -math.Pi+0.1)
	assert.InDelta(t, 0.2, e, 1e-12)
	e = SteeringError(-math.Pi+0.1, math.Pi-0.1)
	assert.InDelta(t, -0.2, e, 1e-12)
}

func TestPathLengthAndSpacing(t *testing.T) {
	path := []Waypoint{{0, 0}, {3, 4}, {3, 10}}
	assert.InDelta(t, 11.0, PathLength(path), 1e-12)
	assert.InDelta(t, 5.5, MeanSpacing(path), 1e-12)
	assert.Equal(t, 0.0, MeanSpacing(path[:1]))
	assert.Equal(t, 0.0, PathLength(nil))
}
