package path_nav

import "math"

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Locator) float64 {
	return a.Point().Sub(b.Point()).Norm()
}

// Bearing returns the world-frame angle from one point to another in (-pi, pi].
func Bearing(from, to Locator) float64 {
	d := to.Point().Sub(from.Point())
	return NormalizeAngle(math.Atan2(d.Y, d.X))
}

// NormalizeAngle maps any finite angle into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	r := math.Remainder(theta, 2*math.Pi)
	if r <= -math.Pi {
		r += 2 * math.Pi
	}
	return r
}

// SteeringError is the shortest signed rotation from heading to bearing.
func SteeringError(heading, bearing float64) float64 {
	e := bearing - heading
	if e > math.Pi {
		e -= 2 * math.Pi
	} else if e < -math.Pi {
		e += 2 * math.Pi
	}
	// Inputs outside (-pi, pi] need more than one correction.
	return NormalizeAngle(e)
}

// PathLength sums the leg lengths of the path.
func PathLength(path []Waypoint) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// MeanSpacing is the average distance between consecutive waypoints.
func MeanSpacing(path []Waypoint) float64 {
	if len(path) < 2 {
		return 0
	}
	return PathLength(path) / float64(len(path)-1)
}
