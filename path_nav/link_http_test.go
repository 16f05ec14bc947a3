package path_nav

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLink_Localization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, lokarriaLocalization, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"Pose":{"Orientation":{"W":0.7071067811865476,"X":0,"Y":0,"Z":0.7071067811865476},
			"Position":{"X":1.5,"Y":-2.25,"Z":0.08}},"Status":4,"Timestamp":1234}`)
	}))
	defer srv.Close()

	link, err := NewHTTPLink(srv.URL+"/", srv.Client())
	require.NoError(t, err)
	pose, err := link.GetPose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.5, pose.X)
	assert.Equal(t, -2.25, pose.Y)
	assert.InDelta(t, math.Pi/2, pose.Heading, 1e-9)
}

func TestHTTPLink_DifferentialDrive(t *testing.T) {
	var got differentialDriveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, lokarriaDrive, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	link, err := NewHTTPLink(srv.URL, srv.Client())
	require.NoError(t, err)
	require.NoError(t, link.SendDrive(context.Background(), DriveCommand{LinearSpeed: 0.5, AngularSpeed: -0.25}))
	assert.Equal(t, differentialDriveRequest{TargetAngularSpeed: -0.25, TargetLinearSpeed: 0.5}, got)
}

func TestHTTPLink_ErrorKinds(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
		defer srv.Close()
		link, err := NewHTTPLink(srv.URL, srv.Client())
		require.NoError(t, err)
		_, err = link.GetPose(context.Background())
		var le *LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, LinkProtocol, le.Kind)
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"Pose": 12}`)
		}))
		defer srv.Close()
		link, err := NewHTTPLink(srv.URL, srv.Client())
		require.NoError(t, err)
		_, err = link.GetPose(context.Background())
		var le *LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, LinkProtocol, le.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		link, err := NewHTTPLink(srv.URL, srv.Client())
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = link.GetPose(ctx)
		var le *LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, LinkTimeout, le.Kind)
		assert.True(t, le.Recoverable())
	})

	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		link, err := NewHTTPLink(url, nil)
		require.NoError(t, err)
		err = link.SendDrive(context.Background(), Stop)
		var le *LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, LinkDisconnected, le.Kind)
	})
}

func TestNewHTTPLink_RequiresURL(t *testing.T) {
	_, err := NewHTTPLink("", nil)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestNavigator_OverHTTPSimulator(t *testing.T) {
	sim, ctl := directSim()
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	link, err := NewHTTPLink(srv.URL, srv.Client())
	require.NoError(t, err)
	path := []Waypoint{{0, 0}, {4, 0}, {4, 4}}
	nav, err := NewNavigator(path, ctl, testLoopConfig(), 0, link)
	require.NoError(t, err)

	res, err := nav.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Arrived)
	assert.Equal(t, 2, res.Advances)
	assert.LessOrEqual(t, Distance(sim.Pose(), Waypoint{4, 4}), 0.5+1e-9)
	cmds := sim.Commands()
	assert.Equal(t, Stop, cmds[len(cmds)-1])
}

func TestSimulatorHandler_RejectsBadRequests(t *testing.T) {
	sim := NewSimulator(SimConfig{})
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+lokarriaLocalization, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL+lokarriaDrive, "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, sim.Commands())
}
