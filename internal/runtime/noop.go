package runtime

import "context"

// NoopRuntime observes an empty world and discards every mutation. It
// backs offline planning, where the interesting output is the plan itself.
type NoopRuntime struct{}

func NewNoopRuntime() *NoopRuntime { return &NoopRuntime{} }

func (*NoopRuntime) Ping(context.Context) error { return nil }
func (*NoopRuntime) Close() error               { return nil }

func (*NoopRuntime) ListContainers(context.Context, string) ([]Container, error) { return nil, nil }

func (*NoopRuntime) CreateContainer(_ context.Context, cfg ContainerConfig) (Container, error) {
	return Container{Name: cfg.Name, Service: cfg.Service, Image: cfg.Image, State: "running", Labels: cfg.Labels}, nil
}

func (*NoopRuntime) StartContainer(context.Context, string) error        { return nil }
func (*NoopRuntime) StopContainer(context.Context, string) error         { return nil }
func (*NoopRuntime) RemoveContainer(context.Context, string, bool) error { return nil }

func (*NoopRuntime) ListNetworks(context.Context, string) ([]Network, error) { return nil, nil }
func (*NoopRuntime) CreateNetwork(context.Context, NetworkConfig) error      { return nil }
func (*NoopRuntime) RemoveNetwork(context.Context, string) error             { return nil }

func (*NoopRuntime) ListVolumes(context.Context, string) ([]Volume, error) { return nil, nil }
func (*NoopRuntime) CreateVolume(context.Context, VolumeConfig) error      { return nil }
func (*NoopRuntime) RemoveVolume(context.Context, string, bool) error      { return nil }

func (*NoopRuntime) EnsureImage(context.Context, string) error { return nil }
