package path_nav

import (
	"context"
	"fmt"

	"github.com/golang/geo/r2"
)

// Pose is a single localization sample reported by the robot link.
//
// Conventions:
//   - x, y in world-frame meters.
//   - heading in radians, normalized to (-pi, pi], 0 along +x.
type Pose struct {
	X       float64
	Y       float64
	Heading float64
}

// Point returns the position part of the pose.
func (p Pose) Point() r2.Point { return r2.Point{X: p.X, Y: p.Y} }

// Waypoint is a fixed 2D target on the planned path.
type Waypoint struct {
	X float64
	Y float64
}

// Point returns the waypoint as a planar point.
func (w Waypoint) Point() r2.Point { return r2.Point{X: w.X, Y: w.Y} }

func (w Waypoint) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", w.X, w.Y)
}

// Locator is anything with a planar position.
type Locator interface {
	Point() r2.Point
}

// Phase is the navigation state of the controller.
type Phase int

const (
	PhaseTraveling Phase = iota + 1
	PhaseArrived
)

func (p Phase) String() string {
	switch p {
	case PhaseTraveling:
		return "TRAVELING"
	case PhaseArrived:
		return "ARRIVED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// DriveCommand is the differential-drive output sent to the robot.
type DriveCommand struct {
	LinearSpeed  float64 // m/s, negative drives backwards
	AngularSpeed float64 // rad/s, positive turns counter-clockwise
}

// Stop is the zero command that leaves the robot stationary.
var Stop = DriveCommand{}

// RobotLink is the round trip to the robot or simulator.
//
// Implementations must honor ctx deadlines and report failures as *LinkError.
type RobotLink interface {
	GetPose(ctx context.Context) (Pose, error)
	SendDrive(ctx context.Context, cmd DriveCommand) error
}

// PathSource yields an ordered, non-empty sequence of waypoints.
type PathSource interface {
	Load(identifier string) ([]Waypoint, error)
}
