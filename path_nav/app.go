package path_nav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OpenLink connects the robot link selected by cfg.Link.Kind. The returned
// close function releases the transport.
func OpenLink(cfg AppConfig) (RobotLink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Link.Kind {
	case LinkHTTP:
		l, err := NewHTTPLink(cfg.Link.HTTP.BaseURL, nil)
		if err != nil {
			return nil, nil, err
		}
		return l, noop, nil
	case LinkUDP:
		l, err := NewUDPLink(cfg.Link.UDP)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	case LinkSerial:
		l, err := OpenSerialLink(cfg.Link.Serial)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	case LinkSim:
		return NewSimulator(cfg.Sim), noop, nil
	default:
		return nil, nil, &ConfigError{Field: "link.kind", Reason: fmt.Sprintf("unknown link kind %q", cfg.Link.Kind)}
	}
}

// LoadConfiguredPath loads cfg.Path.File through a FileSource.
func LoadConfiguredPath(cfg AppConfig) ([]Waypoint, error) {
	return FileSource{Dir: cfg.Path.Dir}.Load(cfg.Path.File)
}

// RunLive loads the path and follows it with the configured link.
func RunLive(ctx context.Context, cfg AppConfig, logger *zap.Logger) (Result, error) {
	path, err := LoadConfiguredPath(cfg)
	if err != nil {
		return Result{}, err
	}
	link, closeLink, err := OpenLink(cfg)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := closeLink(); err != nil {
			logger.Warn("close link", zap.Error(err))
		}
	}()
	return follow(ctx, cfg, path, link, logger)
}

// RunSimulation serves the simulator over HTTP and follows the path through
// the HTTP link, exercising the same wire format as a real robot server.
func RunSimulation(ctx context.Context, cfg AppConfig, logger *zap.Logger) (Result, error) {
	path, err := LoadConfiguredPath(cfg)
	if err != nil {
		return Result{}, err
	}

	sim := NewSimulator(cfg.Sim)
	ln, err := net.Listen("tcp", cfg.Sim.Addr)
	if err != nil {
		return Result{}, fmt.Errorf("listen %s: %w", cfg.Sim.Addr, err)
	}
	srv := &http.Server{Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
	link, err := NewHTTPLink("http://"+ln.Addr().String(), nil)
	if err != nil {
		_ = ln.Close()
		return Result{}, err
	}
	logger.Info("simulator listening", zap.String("addr", ln.Addr().String()))

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("simulator server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		var err error
		res, err = follow(gctx, cfg, path, link, logger)
		return err
	})
	err = g.Wait()
	return res, err
}

func follow(ctx context.Context, cfg AppConfig, path []Waypoint, link RobotLink, logger *zap.Logger) (Result, error) {
	viz, err := StartViz(cfg.Viz, logger)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = viz.Close(sctx)
	}()

	nav, err := NewNavigator(path, cfg.Controller, cfg.Loop, cfg.Hz, link,
		WithClock(clock.New()), WithLogger(logger), WithViz(viz))
	if err != nil {
		return Result{}, err
	}
	return nav.Run(ctx)
}
