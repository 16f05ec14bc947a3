package path_nav

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSource loads paths from JSON files. Relative identifiers resolve
// against Dir when it is set.
type FileSource struct {
	Dir string
}

// lokarriaPosition is the position block of a Lokarria pose.
type lokarriaPosition struct {
	X *float64 `json:"X"`
	Y *float64 `json:"Y"`
	Z float64  `json:"Z"`
}

// lokarriaOrientation is a unit quaternion in Lokarria's W, X, Y, Z order.
type lokarriaOrientation struct {
	W float64 `json:"W"`
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type lokarriaPose struct {
	Position    lokarriaPosition    `json:"Position"`
	Orientation lokarriaOrientation `json:"Orientation"`
}

// pathRecord accepts both the recorded-path shape {"Pose":{"Position":{...}}}
// and a plain {"x": .., "y": ..} object.
type pathRecord struct {
	Pose *lokarriaPose `json:"Pose"`
	X    *float64      `json:"x"`
	Y    *float64      `json:"y"`
}

// Load reads and decodes the path file named by identifier.
func (s FileSource) Load(identifier string) ([]Waypoint, error) {
	name := identifier
	if s.Dir != "" && !filepath.IsAbs(name) {
		name = filepath.Join(s.Dir, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: LoadNotFound, Path: name, Err: err}
		}
		return nil, &LoadError{Kind: LoadMalformed, Path: name, Err: err}
	}
	path, err := DecodePath(data)
	if err != nil {
		return nil, &LoadError{Kind: LoadMalformed, Path: name, Err: err}
	}
	return path, nil
}

// DecodePath parses a JSON array of waypoints. Elements may be recorded
// Lokarria poses, {"x","y"} objects, or [x, y] pairs.
func DecodePath(data []byte) ([]Waypoint, error) {
	var raw []jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("path is empty")
	}

	path := make([]Waypoint, 0, len(raw))
	for i, elem := range raw {
		wp, err := decodeWaypoint(elem)
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		if !finite(wp.X) || !finite(wp.Y) {
			return nil, fmt.Errorf("waypoint %d: non-finite coordinates", i)
		}
		path = append(path, wp)
	}
	return path, nil
}

func decodeWaypoint(elem jsoniter.RawMessage) (Waypoint, error) {
	if json.Get(elem).ValueType() == jsoniter.ArrayValue {
		var pair []float64
		if err := json.Unmarshal(elem, &pair); err != nil {
			return Waypoint{}, err
		}
		if len(pair) < 2 {
			return Waypoint{}, fmt.Errorf("expected [x, y], got %d values", len(pair))
		}
		return Waypoint{X: pair[0], Y: pair[1]}, nil
	}

	var rec pathRecord
	if err := json.Unmarshal(elem, &rec); err != nil {
		return Waypoint{}, err
	}
	switch {
	case rec.Pose != nil:
		p := rec.Pose.Position
		if p.X == nil || p.Y == nil {
			return Waypoint{}, errors.New("Pose.Position needs X and Y")
		}
		return Waypoint{X: *p.X, Y: *p.Y}, nil
	case rec.X != nil && rec.Y != nil:
		return Waypoint{X: *rec.X, Y: *rec.Y}, nil
	default:
		return Waypoint{}, errors.New("missing coordinates")
	}
}

// yaw extracts the heading about +z from the orientation quaternion.
func (q lokarriaOrientation) yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// orientationFromYaw builds the quaternion for a pure rotation about +z.
func orientationFromYaw(heading float64) lokarriaOrientation {
	return lokarriaOrientation{W: math.Cos(heading / 2), Z: math.Sin(heading / 2)}
}
