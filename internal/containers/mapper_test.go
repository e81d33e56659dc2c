package containers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/paths"
)

type fixedSettings struct{}

func (fixedSettings) WorkFolder() (string, bool) { return "_work", true }

func newTestMapper(t *testing.T, goos string) *Mapper {
	t.Helper()
	resolver, err := paths.NewResolver(filepath.Join("/opt", "agent", "bin"), fixedSettings{}, nil)
	require.NoError(t, err)
	return NewMapper(resolver, goos)
}

func TestMapper_DefaultMounts(t *testing.T) {
	m := newTestMapper(t, "linux")

	info, err := m.Build(Resource{Image: "ubuntu:24.04"}, true)
	require.NoError(t, err)

	assert.Equal(t, "ubuntu:24.04", info.Image)
	assert.True(t, info.IsJobContainer)
	assert.NotEmpty(t, info.RequestID)

	require.Len(t, info.Mounts, 3)
	assert.Equal(t, "/__t", info.Mounts[0].Target)
	assert.Equal(t, "/__w", info.Mounts[1].Target)
	assert.Equal(t, "/__a", info.Mounts[2].Target)
	assert.True(t, info.Mounts[2].ReadOnly)
}

func TestMapper_TargetsUnique(t *testing.T) {
	for _, goos := range []string{"linux", "windows", "darwin"} {
		m := newTestMapper(t, goos)
		info, err := m.Build(Resource{Image: "img"}, true)
		require.NoError(t, err)

		targets := map[string]string{}
		for _, pm := range info.PathMappings {
			prev, clash := targets[pm.Container]
			assert.False(t, clash, "%s: %s and %s both map to %s", goos, prev, pm.Host, pm.Container)
			targets[pm.Container] = pm.Host
		}
	}
}

func TestMapper_WindowsTargetsDiffer(t *testing.T) {
	linux, err := newTestMapper(t, "linux").Build(Resource{Image: "img"}, false)
	require.NoError(t, err)
	windows, err := newTestMapper(t, "windows").Build(Resource{Image: "img"}, false)
	require.NoError(t, err)

	for i := range linux.PathMappings {
		assert.NotEqual(t, linux.PathMappings[i].Container, windows.PathMappings[i].Container)
	}
	assert.Equal(t, `C:\__w`, windows.PathMappings[1].Container)
}

func TestMapper_EngineSocketOnlyForPrimaryContainer(t *testing.T) {
	m := newTestMapper(t, "linux")
	res := Resource{Image: "img", RequiresEngineSocket: true}

	primary, err := m.Build(res, true)
	require.NoError(t, err)
	require.Len(t, primary.Mounts, 4)
	socket := primary.Mounts[3]
	assert.Equal(t, "/var/run/docker.sock", socket.Source)
	assert.Equal(t, "/var/run/docker.sock", socket.Target)
	assert.False(t, socket.ReadOnly)

	sidecar, err := m.Build(res, false)
	require.NoError(t, err)
	assert.Len(t, sidecar.Mounts, 3)
}

func TestMapper_RequiresConfiguredWorkFolder(t *testing.T) {
	resolver, err := paths.NewResolver(filepath.Join("/opt", "agent", "bin"), nil, nil)
	require.NoError(t, err)

	_, err = NewMapper(resolver, "linux").Build(Resource{Image: "img"}, true)
	assert.ErrorIs(t, err, paths.ErrConfigurationMissing)
}

func TestInfo_TranslatePath(t *testing.T) {
	m := newTestMapper(t, "linux")
	info, err := m.Build(Resource{Image: "img"}, true)
	require.NoError(t, err)

	work := filepath.Join("/opt", "agent", "_work")
	assert.Equal(t, "/__w", info.TranslatePath(work))
	assert.Equal(t, "/__w/1/s", info.TranslatePath(filepath.Join(work, "1", "s")))

	// The tool cache lives under work but still maps to its own target.
	tools := filepath.Join(work, "_tool")
	assert.Equal(t, "/__t/go/1.24", info.TranslatePath(filepath.Join(tools, "go", "1.24")))

	// Unmapped paths pass through.
	assert.Equal(t, "/etc/hosts", info.TranslatePath("/etc/hosts"))
}

func TestInfo_DistinctRequestIDs(t *testing.T) {
	m := newTestMapper(t, "linux")
	a, err := m.Build(Resource{Image: "img"}, true)
	require.NoError(t, err)
	b, err := m.Build(Resource{Image: "img"}, true)
	require.NoError(t, err)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}
