package path_nav

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenLink(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Link.Kind = LinkSim
	link, closeLink, err := OpenLink(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Simulator{}, link)
	assert.NoError(t, closeLink())

	cfg.Link.Kind = LinkHTTP
	link, closeLink, err = OpenLink(cfg)
	require.NoError(t, err)
	assert.IsType(t, &HTTPLink{}, link)
	assert.NoError(t, closeLink())

	cfg.Link.Kind = LinkUDP
	cfg.Link.UDP = UDPLinkConfig{ListenAddr: "127.0.0.1:0", CommandAddr: "127.0.0.1:9"}
	link, closeLink, err = OpenLink(cfg)
	require.NoError(t, err)
	assert.IsType(t, &UDPLink{}, link)
	assert.NoError(t, closeLink())

	cfg.Link.Kind = "smoke"
	_, _, err = OpenLink(cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "link.kind", cerr.Field)
}

func simulationConfig(t *testing.T) AppConfig {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "square.json"),
		[]byte(`[[0,0],[3,0],[3,3],[0,3]]`), 0o644))

	cfg := DefaultConfig()
	cfg.Hz = 0
	cfg.Path = PathConfig{Dir: dir, File: "square.json"}
	cfg.Sim.Addr = "127.0.0.1:0"
	_, cfg.Controller = directSim()
	cfg.Sim.MaxLinearSpeed = 0
	cfg.Sim.MaxAngularSpeed = 0
	return cfg
}

func TestRunSimulation(t *testing.T) {
	cfg := simulationConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := RunSimulation(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.Arrived)
	assert.Equal(t, 3, res.Advances)
	assert.NotEmpty(t, res.RunID)
	assert.LessOrEqual(t, Distance(res.FinalPose, Waypoint{0, 3}), cfg.Controller.StopTolerance)
}

func TestRunLive_Sim(t *testing.T) {
	cfg := simulationConfig(t)
	cfg.Link.Kind = LinkSim

	res, err := RunLive(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.Arrived)
	assert.Equal(t, 3, res.Advances)
}

func TestRunLive_MissingPath(t *testing.T) {
	cfg := simulationConfig(t)
	cfg.Path.File = "absent.json"

	_, err := RunLive(context.Background(), cfg, zaptest.NewLogger(t))
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, LoadNotFound, lerr.Kind)
}
