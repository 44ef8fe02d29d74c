package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/docker/cli/cli/connhelper"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
)

// stopTimeoutSeconds is how long a container gets to exit gracefully
// before the runtime kills it.
const stopTimeoutSeconds = 10

// DockerRuntime implements Runtime using the official Docker SDK.
type DockerRuntime struct {
	c *dclient.Client
}

// NewDockerRuntime connects to the daemon from the environment
// (DOCKER_HOST et al.). ssh:// hosts are reached through the Docker CLI
// connection helper, which tunnels over the local ssh binary.
func NewDockerRuntime() (*DockerRuntime, error) {
	opts := []dclient.Opt{dclient.FromEnv, dclient.WithAPIVersionNegotiation()}
	if host := os.Getenv("DOCKER_HOST"); strings.HasPrefix(host, "ssh://") {
		helper, err := connhelper.GetConnectionHelper(host)
		if err != nil {
			return nil, fmt.Errorf("ssh connection helper: %w", err)
		}
		opts = []dclient.Opt{
			dclient.WithHTTPClient(&http.Client{
				Transport: &http.Transport{DialContext: helper.Dialer},
			}),
			dclient.WithHost(helper.Host),
			dclient.WithDialContext(helper.Dialer),
			dclient.WithAPIVersionNegotiation(),
		}
	}
	cli, err := dclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRuntime{c: cli}, nil
}

func (d *DockerRuntime) Ping(ctx context.Context) error {
	_, err := d.c.Ping(ctx)
	return wrap("ping", "daemon", err)
}

func (d *DockerRuntime) Close() error { return d.c.Close() }

func (d *DockerRuntime) ListContainers(ctx context.Context, project string) ([]Container, error) {
	list, err := d.c.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: ownedBy(project),
	})
	if err != nil {
		return nil, wrap("list containers", project, err)
	}
	out := make([]Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, Container{
			ID:      c.ID,
			Name:    name,
			Service: c.Labels[LabelService],
			Image:   c.Image,
			State:   string(c.State),
			Labels:  c.Labels,
		})
	}
	return out, nil
}

func (d *DockerRuntime) CreateContainer(ctx context.Context, cfg ContainerConfig) (Container, error) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for _, p := range cfg.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.Container, proto))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: fmt.Sprintf("%d", p.Host)}}
	}

	mounts := make([]mount.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		mt := mount.TypeVolume
		if m.Type == "bind" {
			mt = mount.TypeBind
		}
		mounts = append(mounts, mount.Mount{Type: mt, Source: m.Source, Target: m.Target})
	}

	// The first network rides along on the create call so the container
	// never starts unattached; the rest are connected before start.
	endpoints := map[string]*network.EndpointSettings{}
	if len(cfg.Networks) > 0 {
		first := cfg.Networks[0]
		endpoints[first.Name] = &network.EndpointSettings{Aliases: aliasesOf(first)}
	}

	resp, err := d.c.ContainerCreate(ctx,
		&container.Config{
			Image:        cfg.Image,
			Cmd:          cfg.Cmd,
			Env:          cfg.Env,
			WorkingDir:   cfg.WorkingDir,
			ExposedPorts: exposed,
			Labels:       cfg.Labels,
			Hostname:     cfg.Service,
		},
		&container.HostConfig{
			PortBindings: bindings,
			Mounts:       mounts,
		},
		&network.NetworkingConfig{EndpointsConfig: endpoints},
		nil,
		cfg.Name,
	)
	if err != nil {
		return Container{}, wrap("create container", cfg.Name, err)
	}

	if len(cfg.Networks) > 1 {
		for _, att := range cfg.Networks[1:] {
			err := d.c.NetworkConnect(ctx, att.Name, resp.ID, &network.EndpointSettings{Aliases: aliasesOf(att)})
			if err != nil {
				_ = d.c.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
				return Container{}, wrap("connect network", att.Name, err)
			}
		}
	}

	if err := d.c.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.c.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return Container{}, wrap("start container", cfg.Name, err)
	}

	log.Info().Str("container", cfg.Name).Str("image", cfg.Image).Msg("container created")
	return Container{
		ID:      resp.ID,
		Name:    cfg.Name,
		Service: cfg.Service,
		Image:   cfg.Image,
		State:   "running",
		Labels:  cfg.Labels,
	}, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := d.c.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return wrap("start container", id, err)
	}
	log.Info().Str("id", id).Msg("container started")
	return nil
}

func (d *DockerRuntime) StopContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	if err := d.c.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return wrap("stop container", id, err)
	}
	log.Info().Str("id", id).Msg("container stopped")
	return nil
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.c.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return wrap("remove container", id, err)
	}
	log.Info().Str("id", id).Msg("container removed")
	return nil
}

func (d *DockerRuntime) ListNetworks(ctx context.Context, project string) ([]Network, error) {
	list, err := d.c.NetworkList(ctx, network.ListOptions{Filters: ownedBy(project)})
	if err != nil {
		return nil, wrap("list networks", project, err)
	}
	out := make([]Network, 0, len(list))
	for _, n := range list {
		out = append(out, Network{ID: n.ID, Name: n.Name, Driver: n.Driver, Labels: n.Labels})
	}
	return out, nil
}

func (d *DockerRuntime) CreateNetwork(ctx context.Context, cfg NetworkConfig) error {
	_, err := d.c.NetworkCreate(ctx, cfg.Name, network.CreateOptions{
		Driver: cfg.Driver,
		Labels: cfg.Labels,
	})
	if err != nil {
		return wrap("create network", cfg.Name, err)
	}
	log.Info().Str("network", cfg.Name).Str("driver", cfg.Driver).Msg("network created")
	return nil
}

func (d *DockerRuntime) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.c.NetworkRemove(ctx, name); err != nil {
		return wrap("remove network", name, err)
	}
	log.Info().Str("network", name).Msg("network removed")
	return nil
}

func (d *DockerRuntime) ListVolumes(ctx context.Context, project string) ([]Volume, error) {
	resp, err := d.c.VolumeList(ctx, volume.ListOptions{Filters: ownedBy(project)})
	if err != nil {
		return nil, wrap("list volumes", project, err)
	}
	out := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		out = append(out, Volume{Name: v.Name, Labels: v.Labels})
	}
	return out, nil
}

func (d *DockerRuntime) CreateVolume(ctx context.Context, cfg VolumeConfig) error {
	_, err := d.c.VolumeCreate(ctx, volume.CreateOptions{Name: cfg.Name, Labels: cfg.Labels})
	if err != nil {
		return wrap("create volume", cfg.Name, err)
	}
	log.Info().Str("volume", cfg.Name).Msg("volume created")
	return nil
}

func (d *DockerRuntime) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := d.c.VolumeRemove(ctx, name, force); err != nil {
		return wrap("remove volume", name, err)
	}
	log.Info().Str("volume", name).Msg("volume removed")
	return nil
}

func (d *DockerRuntime) EnsureImage(ctx context.Context, ref string) error {
	f := filters.NewArgs(filters.Arg("reference", ref))
	list, err := d.c.ImageList(ctx, image.ListOptions{Filters: f})
	if err != nil {
		return wrap("list images", ref, err)
	}
	if len(list) > 0 {
		return nil
	}
	log.Info().Str("image", ref).Msg("pulling image")
	reader, err := d.c.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return wrap("pull image", ref, err)
	}
	defer reader.Close()
	// The pull only completes once the response stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return wrap("pull image", ref, err)
	}
	return nil
}

func ownedBy(project string) filters.Args {
	return filters.NewArgs(
		filters.Arg("label", LabelOwner+"="+OwnerValue),
		filters.Arg("label", LabelProject+"="+project),
	)
}

func aliasesOf(att NetworkAttachment) []string {
	if att.Alias == "" {
		return nil
	}
	return []string{att.Alias}
}
