package path_nav

import "math"

// ControllerConfig bundles the advance thresholds and steering-law gains.
type ControllerConfig struct {
	LookAhead       float64 `mapstructure:"look_ahead"`
	LookAheadFactor float64 `mapstructure:"look_ahead_factor"`
	StopTolerance   float64 `mapstructure:"stop_tolerance"`

	LinearSpeed      float64 `mapstructure:"linear_speed"`
	AngularGain      float64 `mapstructure:"angular_gain"`
	MaxAngularSpeed  float64 `mapstructure:"max_angular_speed"`
	HeadingDeadband  float64 `mapstructure:"heading_deadband"`
	TurnInPlaceAngle float64 `mapstructure:"turn_in_place_angle"`
	AllowReverse     bool    `mapstructure:"allow_reverse"`
}

// DefaultControllerConfig mirrors the defaults in SetDefaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		LookAhead:        1.0,
		StopTolerance:    0.5,
		LinearSpeed:      1.0,
		AngularGain:      1.0,
		MaxAngularSpeed:  2.0,
		TurnInPlaceAngle: math.Pi / 2,
	}
}

// ResolveLookAhead fills in a look-ahead derived from the path spacing when
// none is configured explicitly.
func (c ControllerConfig) ResolveLookAhead(path []Waypoint) ControllerConfig {
	if c.LookAhead == 0 && c.LookAheadFactor > 0 {
		c.LookAhead = MeanSpacing(path) * c.LookAheadFactor
	}
	return c
}

// Validate rejects thresholds the controller cannot work with.
func (c ControllerConfig) Validate() error {
	switch {
	case !(c.LookAhead > 0):
		return &ConfigError{Field: "controller.look_ahead", Reason: "must be > 0"}
	case !(c.StopTolerance > 0):
		return &ConfigError{Field: "controller.stop_tolerance", Reason: "must be > 0"}
	case c.StopTolerance == c.LookAhead:
		return &ConfigError{Field: "controller.stop_tolerance", Reason: "must differ from controller.look_ahead"}
	case c.LinearSpeed < 0:
		return &ConfigError{Field: "controller.linear_speed", Reason: "must be >= 0"}
	case c.AngularGain < 0:
		return &ConfigError{Field: "controller.angular_gain", Reason: "must be >= 0"}
	case c.MaxAngularSpeed < 0:
		return &ConfigError{Field: "controller.max_angular_speed", Reason: "must be >= 0"}
	case c.HeadingDeadband < 0:
		return &ConfigError{Field: "controller.heading_deadband", Reason: "must be >= 0"}
	case c.TurnInPlaceAngle <= 0 || c.TurnInPlaceAngle > math.Pi:
		return &ConfigError{Field: "controller.turn_in_place_angle", Reason: "must be in (0, pi]"}
	}
	return nil
}

// ControllerState is everything that changes while following the path.
type ControllerState struct {
	CurrentTarget Waypoint
	TargetIndex   int
	Remaining     []Waypoint
	LookAhead     float64
	StopTolerance float64
}

// StepResult is the outcome of one control cycle.
type StepResult struct {
	Command       DriveCommand
	Advanced      bool
	Distance      float64 // to the target before any advance
	SteeringError float64
	ReachedFinal  bool
}

// Controller follows a waypoint path with proportional heading control.
type Controller struct {
	cfg   ControllerConfig
	state ControllerState
	final Waypoint
	phase Phase
}

// NewController validates the configuration and takes ownership of path.
func NewController(path []Waypoint, cfg ControllerConfig) (*Controller, error) {
	if len(path) == 0 {
		return nil, &ConfigError{Field: "path", Reason: "must contain at least one waypoint"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	owned := append([]Waypoint(nil), path...)
	return &Controller{
		cfg: cfg,
		state: ControllerState{
			CurrentTarget: owned[0],
			Remaining:     owned[1:],
			LookAhead:     cfg.LookAhead,
			StopTolerance: cfg.StopTolerance,
		},
		final: owned[len(owned)-1],
		phase: PhaseTraveling,
	}, nil
}

// State returns a snapshot of the controller state.
func (c *Controller) State() ControllerState {
	st := c.state
	st.Remaining = append([]Waypoint(nil), c.state.Remaining...)
	return st
}

// Phase returns the current navigation phase.
func (c *Controller) Phase() Phase { return c.phase }

// Final returns the last waypoint of the original path.
func (c *Controller) Final() Waypoint { return c.final }

// Step computes the command for the current pose, advancing the target when
// the robot is inside the look-ahead distance.
func (c *Controller) Step(pose Pose) StepResult {
	if c.phase == PhaseArrived {
		return StepResult{Command: Stop, ReachedFinal: true}
	}

	res := StepResult{Distance: Distance(pose, c.state.CurrentTarget)}
	if res.Distance < c.state.LookAhead && len(c.state.Remaining) > 0 {
		c.state.CurrentTarget = c.state.Remaining[0]
		c.state.Remaining = c.state.Remaining[1:]
		c.state.TargetIndex++
		res.Advanced = true
	}

	res.SteeringError = SteeringError(pose.Heading, Bearing(pose, c.state.CurrentTarget))
	res.Command = c.driveLaw(res.SteeringError)
	// Arrival requires the final waypoint to be the current target.
	res.ReachedFinal = len(c.state.Remaining) == 0 &&
		Distance(pose, c.final) <= c.state.StopTolerance
	return res
}

// Arrive moves the controller into its terminal phase.
func (c *Controller) Arrive() { c.phase = PhaseArrived }

// driveLaw turns a steering error into a drive command.
func (c *Controller) driveLaw(e float64) DriveCommand {
	var angular float64
	if math.Abs(e) >= c.cfg.HeadingDeadband {
		angular = c.cfg.AngularGain * e
		if c.cfg.MaxAngularSpeed > 0 {
			angular = clamp(angular, -c.cfg.MaxAngularSpeed, c.cfg.MaxAngularSpeed)
		}
	}

	linear := c.cfg.LinearSpeed * math.Cos(e)
	if !c.cfg.AllowReverse && math.Abs(e) >= c.cfg.TurnInPlaceAngle {
		linear = 0
	}
	if !c.cfg.AllowReverse {
		linear = math.Max(0, linear)
	}
	return DriveCommand{LinearSpeed: linear, AngularSpeed: angular}
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
