package path_nav

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_LoadsRecordedPath(t *testing.T) {
	path, err := FileSource{Dir: "testdata"}.Load("lokarria_path.json")
	require.NoError(t, err)
	assert.Equal(t, []Waypoint{{0, 0}, {0.5, 0.02}, {1.0, 0.15}, {1.4, 0.5}}, path)
}

func TestFileSource_NotFound(t *testing.T) {
	_, err := FileSource{Dir: t.TempDir()}.Load("missing.json")
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, LoadNotFound, lerr.Kind)
}

func TestFileSource_AbsoluteIgnoresDir(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(name, []byte(`[[1, 2]]`), 0o644))
	path, err := FileSource{Dir: "/nonexistent"}.Load(name)
	require.NoError(t, err)
	assert.Equal(t, []Waypoint{{1, 2}}, path)
}

func TestDecodePath_Shapes(t *testing.T) {
	path, err := DecodePath([]byte(`[{"x": 1, "y": 2}, [3, 4], {"X": 5, "Y": 6}, {"Pose": {"Position": {"X": 7, "Y": 8}}}]`))
	require.NoError(t, err)
	assert.Equal(t, []Waypoint{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, path)
}

func TestDecodePath_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{{`,
		"not an array":     `{"x": 1}`,
		"empty":            `[]`,
		"missing y":        `[{"x": 1}]`,
		"short pair":       `[[1]]`,
		"pose no position": `[{"Pose": {"Orientation": {"W": 1}}}]`,
		"string coords":    `[{"x": "a", "y": 2}]`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePath([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestFileSource_MalformedKind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`[]`), 0o644))
	_, err := FileSource{Dir: dir}.Load("bad.json")
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, LoadMalformed, lerr.Kind)
	assert.Contains(t, err.Error(), "empty")
}

func TestOrientationYaw(t *testing.T) {
	for _, h := range []float64{0, 0.3, -1.2, math.Pi / 2, 3.0, -3.0} {
		assert.InDelta(t, h, orientationFromYaw(h).yaw(), 1e-12)
	}
	// Unnormalized quaternions from the recorded path still give a heading.
	q := lokarriaOrientation{W: 0.95, Z: 0.31}
	assert.InDelta(t, 2*math.Atan2(0.31, 0.95), q.yaw(), 2e-2)
}
