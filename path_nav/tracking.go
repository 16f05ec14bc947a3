package path_nav

// ProgressTracker watches the loop for stalls and accumulates odometry.
type ProgressTracker struct {
	stallCycles int

	lastPose           *Pose
	cyclesSinceAdvance int
	stalled            bool
	travelled          float64
	stalls             int
}

// NewProgressTracker reports a stall after stallCycles cycles without an
// advance. A non-positive bound disables stall detection.
func NewProgressTracker(stallCycles int) *ProgressTracker {
	return &ProgressTracker{stallCycles: stallCycles}
}

// Update ingests one completed cycle. progressed resets the count, as a
// waypoint advance does. It returns true exactly once per stall episode, on
// the cycle that exceeds the bound.
func (tr *ProgressTracker) Update(pose Pose, progressed bool) bool {
	if tr.lastPose != nil {
		tr.travelled += Distance(*tr.lastPose, pose)
	}
	p := pose
	tr.lastPose = &p

	if progressed {
		tr.cyclesSinceAdvance = 0
		tr.stalled = false
		return false
	}
	tr.cyclesSinceAdvance++

	if tr.stallCycles <= 0 || tr.stalled || tr.cyclesSinceAdvance <= tr.stallCycles {
		return false
	}
	tr.stalled = true
	tr.stalls++
	return true
}

// CyclesSinceAdvance is the number of cycles since the target last changed.
func (tr *ProgressTracker) CyclesSinceAdvance() int { return tr.cyclesSinceAdvance }

// Travelled is the path length covered by the pose samples seen so far.
func (tr *ProgressTracker) Travelled() float64 { return tr.travelled }

// Stalls counts stall episodes.
func (tr *ProgressTracker) Stalls() int { return tr.stalls }
