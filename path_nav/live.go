package path_nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result summarizes a navigation run.
type Result struct {
	RunID     string
	Arrived   bool
	Cycles    int
	Advances  int
	Retries   int
	Stalls    int
	Travelled float64
	Elapsed   time.Duration
	FinalPose Pose
}

// Navigator runs the synchronous control loop against a robot link.
type Navigator struct {
	ctrl    *Controller
	link    RobotLink
	cfg     LoopConfig
	period  time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	viz     *VizMetrics
	tracker *ProgressTracker

	onTarget func(index int, target Waypoint)
	progress *rate.Sometimes
	runID    string

	// approaching is set once the robot is inside look-ahead of the final waypoint.
	approaching bool
}

// Option customizes a Navigator.
type Option func(*Navigator)

// WithClock injects the clock used for pacing, backoff and timing.
func WithClock(c clock.Clock) Option {
	return func(n *Navigator) { n.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// WithViz publishes live values to the expvar endpoint.
func WithViz(v *VizMetrics) Option {
	return func(n *Navigator) { n.viz = v }
}

// WithTargetHook observes the initial target and every advance, in order.
func WithTargetHook(fn func(index int, target Waypoint)) Option {
	return func(n *Navigator) { n.onTarget = fn }
}

// WithRunID tags log lines and the result with id instead of a fresh UUID.
func WithRunID(id string) Option {
	return func(n *Navigator) { n.runID = id }
}

// NewNavigator builds the controller for path and binds it to link.
// hz is the cycle rate; 0 runs cycles back to back.
func NewNavigator(path []Waypoint, ctl ControllerConfig, loop LoopConfig, hz float64, link RobotLink, opts ...Option) (*Navigator, error) {
	if hz < 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return nil, &ConfigError{Field: "hz", Reason: "must be a finite value >= 0"}
	}
	if err := loop.Validate(); err != nil {
		return nil, err
	}
	ctrl, err := NewController(path, ctl.ResolveLookAhead(path))
	if err != nil {
		return nil, err
	}

	n := &Navigator{
		ctrl:     ctrl,
		link:     link,
		cfg:      loop,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		tracker:  NewProgressTracker(loop.StallCycles),
		progress: &rate.Sometimes{Interval: loop.ProgressInterval},
	}
	if hz > 0 {
		n.period = time.Duration(float64(time.Second) / hz)
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.runID == "" {
		n.runID = uuid.NewString()
	}
	n.logger = n.logger.With(zap.String("run_id", n.runID))
	if st := ctrl.State(); st.StopTolerance > st.LookAhead {
		n.logger.Warn("stop tolerance exceeds look-ahead",
			zap.Float64("stop_tolerance", st.StopTolerance), zap.Float64("look_ahead", st.LookAhead))
	}
	return n, nil
}

// Controller exposes the underlying controller.
func (n *Navigator) Controller() *Controller { return n.ctrl }

// Run drives the robot until it is within stop tolerance of the final
// waypoint, the context is cancelled, or the link fails for good. Every
// exit other than arrival tries to leave the robot stationary.
func (n *Navigator) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: n.runID}
	start := n.clock.Now()
	finish := func(err error) (Result, error) {
		res.Elapsed = n.clock.Since(start)
		res.Stalls = n.tracker.Stalls()
		res.Travelled = n.tracker.Travelled()
		return res, err
	}

	st := n.ctrl.State()
	n.logger.Info("navigation started",
		zap.Int("waypoints", len(st.Remaining)+1),
		zap.Stringer("first", st.CurrentTarget),
		zap.Stringer("final", n.ctrl.Final()),
		zap.Float64("look_ahead", st.LookAhead),
		zap.Float64("stop_tolerance", st.StopTolerance))
	if n.onTarget != nil {
		n.onTarget(st.TargetIndex, st.CurrentTarget)
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return finish(n.abort(ctx, err))
		}
		cycleStart := n.clock.Now()

		err := n.cycle(ctx, &res)
		if err == nil {
			failures = 0
			if n.ctrl.Phase() == PhaseArrived {
				res.Arrived = true
				n.logger.Info("arrived at final waypoint",
					zap.Stringer("final", n.ctrl.Final()),
					zap.Int("cycles", res.Cycles),
					zap.Duration("elapsed", n.clock.Since(start)))
				if herr := n.halt(ctx); herr != nil {
					return finish(herr)
				}
				return finish(nil)
			}
			n.wait(ctx, n.period-n.clock.Since(cycleStart))
			continue
		}

		if ctx.Err() != nil {
			return finish(n.abort(ctx, ctx.Err()))
		}
		var stall *StallError
		if errors.As(err, &stall) {
			return finish(n.abort(ctx, err))
		}
		var le *LinkError
		if !errors.As(err, &le) || !le.Recoverable() || failures >= n.cfg.MaxRetries {
			return finish(n.abort(ctx, fmt.Errorf("%w: %w", ErrNavigationFailed, err)))
		}
		failures++
		res.Retries++
		n.logger.Warn("link failure, retrying cycle",
			zap.Error(err), zap.Int("attempt", failures), zap.Int("max_retries", n.cfg.MaxRetries))
		n.wait(ctx, n.cfg.RetryBackoff)
	}
}

// cycle runs one acquire-compute-submit round.
func (n *Navigator) cycle(ctx context.Context, res *Result) error {
	pose, err := n.getPose(ctx)
	if err != nil {
		return err
	}
	n.viz.UpdatePose(pose)

	step := n.ctrl.Step(pose)
	st := n.ctrl.State()
	if step.Advanced {
		res.Advances++
		n.logger.Debug("advanced to next waypoint",
			zap.Int("index", st.TargetIndex), zap.Stringer("target", st.CurrentTarget))
		if n.onTarget != nil {
			n.onTarget(st.TargetIndex, st.CurrentTarget)
		}
	}
	n.viz.UpdateStep(st, step)

	// No advance is possible on the final leg; entering look-ahead of the
	// final waypoint counts as progress instead.
	progressed := step.Advanced
	if !n.approaching && len(st.Remaining) == 0 && Distance(pose, n.ctrl.Final()) < st.LookAhead {
		n.approaching = true
		progressed = true
	}
	if n.tracker.Update(pose, progressed) {
		n.viz.UpdateStalls(n.tracker.Stalls())
		stall := &StallError{Cycles: n.tracker.CyclesSinceAdvance(), TargetIndex: st.TargetIndex, Target: st.CurrentTarget}
		n.logger.Warn("stall detected", zap.Error(stall), zap.Float64("distance", step.Distance))
		if n.cfg.FailOnStall {
			return stall
		}
	}

	if err := n.sendDrive(ctx, step.Command); err != nil {
		return err
	}
	res.Cycles++
	res.FinalPose = pose

	n.logger.Debug("cycle",
		zap.Float64("x", pose.X), zap.Float64("y", pose.Y), zap.Float64("heading", pose.Heading),
		zap.Int("target", st.TargetIndex), zap.Float64("distance", step.Distance),
		zap.Float64("error", step.SteeringError),
		zap.Float64("linear", step.Command.LinearSpeed), zap.Float64("angular", step.Command.AngularSpeed))
	n.progress.Do(func() {
		n.logger.Info("progress",
			zap.Int("target", st.TargetIndex), zap.Int("remaining", len(st.Remaining)),
			zap.Float64("to_final", Distance(pose, n.ctrl.Final())))
	})

	if step.ReachedFinal {
		n.ctrl.Arrive()
	}
	return nil
}

func (n *Navigator) getPose(ctx context.Context) (Pose, error) {
	cctx, cancel := context.WithTimeout(ctx, n.cfg.PoseTimeout)
	defer cancel()
	pose, err := n.link.GetPose(cctx)
	if err != nil {
		return Pose{}, ClassifyLinkError("get_pose", err)
	}
	if !finite(pose.X) || !finite(pose.Y) || !finite(pose.Heading) {
		return Pose{}, &LinkError{Kind: LinkProtocol, Op: "get_pose", Err: fmt.Errorf("non-finite pose %+v", pose)}
	}
	pose.Heading = NormalizeAngle(pose.Heading)
	return pose, nil
}

func (n *Navigator) sendDrive(ctx context.Context, cmd DriveCommand) error {
	cctx, cancel := context.WithTimeout(ctx, n.cfg.DriveTimeout)
	defer cancel()
	return ClassifyLinkError("send_drive", n.link.SendDrive(cctx, cmd))
}

// halt sends the zero command on a context that outlives cancellation of ctx.
func (n *Navigator) halt(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.HaltTimeout)
	defer cancel()
	if err := n.link.SendDrive(hctx, Stop); err != nil {
		return fmt.Errorf("halt: %w", ClassifyLinkError("send_drive", err))
	}
	return nil
}

// abort stops the robot and returns cause, joined with any halt failure.
func (n *Navigator) abort(ctx context.Context, cause error) error {
	err := cause
	if herr := n.halt(ctx); herr != nil {
		err = multierr.Append(err, herr)
	}
	if errors.Is(cause, context.Canceled) {
		n.logger.Info("navigation cancelled", zap.Error(err))
	} else {
		n.logger.Error("navigation aborted", zap.Error(err))
	}
	return err
}

// wait blocks for d on the injected clock or until ctx is done.
func (n *Navigator) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := n.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
