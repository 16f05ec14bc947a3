package path_nav

import (
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"
)

// SimConfig controls the kinematic simulator.
type SimConfig struct {
	Addr            string  `mapstructure:"addr"`
	Dt              float64 `mapstructure:"dt"`
	StartX          float64 `mapstructure:"start_x"`
	StartY          float64 `mapstructure:"start_y"`
	StartHeading    float64 `mapstructure:"start_heading"`
	MaxLinearSpeed  float64 `mapstructure:"max_linear_speed"`
	MaxAngularSpeed float64 `mapstructure:"max_angular_speed"`
}

// Simulator is a unicycle robot. Each pose query integrates the last drive
// command over Dt seconds, so a run replays identically.
type Simulator struct {
	cfg SimConfig

	mu       sync.Mutex
	pose     Pose
	cmd      DriveCommand
	queries  int
	commands []DriveCommand
	start    time.Time
}

// NewSimulator places the robot at the configured start pose.
func NewSimulator(cfg SimConfig) *Simulator {
	if cfg.Dt <= 0 {
		cfg.Dt = 0.1
	}
	return &Simulator{
		cfg:   cfg,
		pose:  Pose{X: cfg.StartX, Y: cfg.StartY, Heading: NormalizeAngle(cfg.StartHeading)},
		start: time.Now(),
	}
}

// GetPose advances the model one step and returns the new pose.
func (s *Simulator) GetPose(ctx context.Context) (Pose, error) {
	if err := ctx.Err(); err != nil {
		return Pose{}, ClassifyLinkError("get_pose", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queries > 0 {
		s.integrate()
	}
	s.queries++
	return s.pose, nil
}

// SendDrive records the command applied on the next step.
func (s *Simulator) SendDrive(ctx context.Context, cmd DriveCommand) error {
	if err := ctx.Err(); err != nil {
		return ClassifyLinkError("send_drive", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = s.limit(cmd)
	s.commands = append(s.commands, cmd)
	return nil
}

// Pose returns the current pose without stepping.
func (s *Simulator) Pose() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Commands returns every command received so far.
func (s *Simulator) Commands() []DriveCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DriveCommand(nil), s.commands...)
}

// integrate turns first, then drives along the new heading.
func (s *Simulator) integrate() {
	dt := s.cfg.Dt
	s.pose.Heading = NormalizeAngle(s.pose.Heading + s.cmd.AngularSpeed*dt)
	s.pose.X += s.cmd.LinearSpeed * dt * math.Cos(s.pose.Heading)
	s.pose.Y += s.cmd.LinearSpeed * dt * math.Sin(s.pose.Heading)
}

func (s *Simulator) limit(cmd DriveCommand) DriveCommand {
	if m := s.cfg.MaxLinearSpeed; m > 0 {
		cmd.LinearSpeed = clamp(cmd.LinearSpeed, -m, m)
	}
	if m := s.cfg.MaxAngularSpeed; m > 0 {
		cmd.AngularSpeed = clamp(cmd.AngularSpeed, -m, m)
	}
	return cmd
}

// Handler serves the Lokarria localization and differential drive endpoints.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(lokarriaLocalization, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pose, err := s.GetPose(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		x, y := pose.X, pose.Y
		body, err := json.Marshal(localizationResponse{
			Pose: lokarriaPose{
				Position:    lokarriaPosition{X: &x, Y: &y},
				Orientation: orientationFromYaw(pose.Heading),
			},
			Timestamp: time.Since(s.start).Milliseconds(),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	mux.HandleFunc(lokarriaDrive, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req differentialDriveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := DriveCommand{LinearSpeed: req.TargetLinearSpeed, AngularSpeed: req.TargetAngularSpeed}
		if err := s.SendDrive(r.Context(), cmd); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
