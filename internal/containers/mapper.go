// Package containers builds host-to-container path mappings for isolated
// job execution. The mapper is a pure request-building step: it derives
// mounts from the resolver's well-known paths and never validates that
// host paths exist. Launching the container is an external collaborator's
// job.
package containers

import (
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/agentd/internal/paths"
)

// In-container targets are fixed and deliberately distinct from any path
// an agent installation would use on the host, so a host path can never
// collide with its own mapping.
const (
	posixToolsTarget = "/__t"
	posixWorkTarget  = "/__w"
	posixRootTarget  = "/__a"

	windowsToolsTarget = `C:\__t`
	windowsWorkTarget  = `C:\__w`
	windowsRootTarget  = `C:\__a`

	posixEngineSocket = "/var/run/docker.sock"
	windowsEnginePipe = `\\.\pipe\docker_engine`
)

// Resource describes a container requested for a job.
type Resource struct {
	// Image is the container image reference.
	Image string

	// RequiresEngineSocket asks for the local container engine's control
	// socket inside the container. Only honored for the job's primary
	// container.
	RequiresEngineSocket bool
}

// Mount is one host volume exposed inside the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PathMapping translates one host path prefix to its in-container prefix.
type PathMapping struct {
	Host      string
	Container string
}

// Info is an immutable container launch request. Mutated only while the
// mapper builds it.
type Info struct {
	// RequestID correlates the launch through trace output.
	RequestID string

	// Image is the container image reference.
	Image string

	// IsJobContainer marks the job's primary container.
	IsJobContainer bool

	// Mounts are the volumes, in mount order.
	Mounts []Mount

	// PathMappings translate host paths, in match order.
	PathMappings []PathMapping
}

// TranslatePath maps a host path into the container, or returns it
// unchanged when no mapping prefix applies.
func (i *Info) TranslatePath(hostPath string) string {
	for _, m := range i.PathMappings {
		if hostPath == m.Host {
			return m.Container
		}
		prefix := m.Host + string(filepath.Separator)
		if strings.HasPrefix(hostPath, prefix) {
			rest := hostPath[len(prefix):]
			if strings.Contains(m.Container, `\`) {
				return m.Container + `\` + strings.ReplaceAll(rest, "/", `\`)
			}
			return path.Join(m.Container, filepath.ToSlash(rest))
		}
	}
	return hostPath
}

// Mapper builds container launch requests from the agent's well-known
// paths.
type Mapper struct {
	resolver *paths.Resolver
	goos     string
}

// NewMapper creates a mapper. goos selects the in-container path flavor;
// empty means the running platform.
func NewMapper(resolver *paths.Resolver, goos string) *Mapper {
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Mapper{resolver: resolver, goos: goos}
}

// Build derives the launch request for res. The tool cache, work
// directory and agent root are always mounted; the engine socket is added
// only for the job's primary container when the resource asks for it.
func (m *Mapper) Build(res Resource, isJobContainer bool) (*Info, error) {
	tools, err := m.resolver.Resolve(paths.Tools)
	if err != nil {
		return nil, fmt.Errorf("resolving tool cache: %w", err)
	}
	work, err := m.resolver.Resolve(paths.Work)
	if err != nil {
		return nil, fmt.Errorf("resolving work directory: %w", err)
	}
	root, err := m.resolver.Resolve(paths.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving agent root: %w", err)
	}

	toolsTarget, workTarget, rootTarget := posixToolsTarget, posixWorkTarget, posixRootTarget
	if m.goos == "windows" {
		toolsTarget, workTarget, rootTarget = windowsToolsTarget, windowsWorkTarget, windowsRootTarget
	}

	info := &Info{
		RequestID:      uuid.New().String(),
		Image:          res.Image,
		IsJobContainer: isJobContainer,
		Mounts: []Mount{
			{Source: tools, Target: toolsTarget},
			{Source: work, Target: workTarget},
			{Source: root, Target: rootTarget, ReadOnly: true},
		},
		PathMappings: []PathMapping{
			{Host: tools, Container: toolsTarget},
			{Host: work, Container: workTarget},
			{Host: root, Container: rootTarget},
		},
	}

	if isJobContainer && res.RequiresEngineSocket {
		socket := posixEngineSocket
		if m.goos == "windows" {
			socket = windowsEnginePipe
		}
		info.Mounts = append(info.Mounts, Mount{Source: socket, Target: socket})
	}

	return info, nil
}
