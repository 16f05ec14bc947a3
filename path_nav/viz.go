package path_nav

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"

	"go.uber.org/zap"
)

// VizConfig controls the optional expvar endpoint used for live plotting.
type VizConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// VizMetrics exposes live pose, target and command values via expvar.
type VizMetrics struct {
	root   *expvar.Map
	pose   *expvar.Map
	output *expvar.Map
	target *expvar.Map
	stalls *expvar.Int
	server *http.Server
}

const vizVar = "pathnav"

func newVizMetrics() *VizMetrics {
	v := &VizMetrics{
		root:   new(expvar.Map).Init(),
		pose:   new(expvar.Map).Init(),
		output: new(expvar.Map).Init(),
		target: new(expvar.Map).Init(),
		stalls: new(expvar.Int),
	}
	for _, key := range []string{"x", "y", "heading"} {
		v.pose.Set(key, new(expvar.Float))
	}
	for _, key := range []string{"linear", "angular"} {
		v.output.Set(key, new(expvar.Float))
	}
	for _, key := range []string{"x", "y", "index", "distance"} {
		v.target.Set(key, new(expvar.Float))
	}
	v.root.Set("pose", v.pose)
	v.root.Set("output", v.output)
	v.root.Set("target", v.target)
	v.root.Set("stalls", v.stalls)
	return v
}

// StartViz starts an HTTP server exposing /debug/vars for plotting.
// It returns nil metrics when disabled.
func StartViz(cfg VizConfig, logger *zap.Logger) (*VizMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7070"
	}

	metrics := newVizMetrics()
	if existing, ok := expvar.Get(vizVar).(*expvar.Map); ok {
		existing.Init()
		metrics.root.Do(func(kv expvar.KeyValue) { existing.Set(kv.Key, kv.Value) })
		metrics.root = existing
	} else {
		expvar.Publish(vizVar, metrics.root)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	metrics.server = &http.Server{Handler: mux}
	go func() {
		if err := metrics.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("viz server error", zap.Error(err))
		}
	}()
	logger.Info("viz endpoint listening", zap.String("addr", ln.Addr().String()))
	return metrics, nil
}

// Close stops the HTTP server.
func (v *VizMetrics) Close(ctx context.Context) error {
	if v == nil || v.server == nil {
		return nil
	}
	return v.server.Shutdown(ctx)
}

// UpdatePose publishes the latest pose sample.
func (v *VizMetrics) UpdatePose(p Pose) {
	if v == nil {
		return
	}
	setFloat(v.pose, "x", p.X)
	setFloat(v.pose, "y", p.Y)
	setFloat(v.pose, "heading", p.Heading)
}

// UpdateStep publishes the target and command of the latest cycle.
func (v *VizMetrics) UpdateStep(st ControllerState, res StepResult) {
	if v == nil {
		return
	}
	setFloat(v.target, "x", st.CurrentTarget.X)
	setFloat(v.target, "y", st.CurrentTarget.Y)
	setFloat(v.target, "index", float64(st.TargetIndex))
	setFloat(v.target, "distance", res.Distance)
	setFloat(v.output, "linear", res.Command.LinearSpeed)
	setFloat(v.output, "angular", res.Command.AngularSpeed)
}

// UpdateStalls publishes the stall counter.
func (v *VizMetrics) UpdateStalls(n int) {
	if v == nil {
		return
	}
	v.stalls.Set(int64(n))
}

// setFloat updates an expvar.Float stored inside a map.
func setFloat(m *expvar.Map, key string, value float64) {
	if v := m.Get(key); v != nil {
		if f, ok := v.(*expvar.Float); ok {
			f.Set(value)
			return
		}
	}
	f := new(expvar.Float)
	f.Set(value)
	m.Set(key, f)
}
