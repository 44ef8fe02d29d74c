// Package runtime is the thin adapter between the reconciler and the
// container runtime. The reconciler only ever talks to the Runtime
// interface; the Docker implementation lives in docker.go.
package runtime

import (
	"context"
	"fmt"
)

// Runtime is the contract the reconciler converges against. Every call
// may fail; failures are surfaced as *Error, never retried here.
type Runtime interface {
	Ping(ctx context.Context) error
	Close() error

	// ListContainers returns all containers owned by the project,
	// including stopped ones.
	ListContainers(ctx context.Context, project string) ([]Container, error)
	// CreateContainer creates a container, attaches it to every declared
	// network with its alias, and starts it. Name resolution for the
	// service is available by the time the call returns.
	CreateContainer(ctx context.Context, cfg ContainerConfig) (Container, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error

	ListNetworks(ctx context.Context, project string) ([]Network, error)
	CreateNetwork(ctx context.Context, cfg NetworkConfig) error
	RemoveNetwork(ctx context.Context, name string) error

	ListVolumes(ctx context.Context, project string) ([]Volume, error)
	CreateVolume(ctx context.Context, cfg VolumeConfig) error
	RemoveVolume(ctx context.Context, name string, force bool) error

	// EnsureImage pulls the image unless it is already present locally.
	EnsureImage(ctx context.Context, image string) error
}

// Container is the observed state of one container.
type Container struct {
	ID      string
	Name    string
	Service string // from the service label
	Image   string
	State   string // "running", "exited", "created", ...
	Labels  map[string]string
}

// Fingerprint returns the configuration fingerprint recorded on the
// container at creation time, or "" for containers created elsewhere.
func (c Container) Fingerprint() string {
	return c.Labels[LabelFingerprint]
}

func (c Container) Running() bool { return c.State == "running" }

type Network struct {
	ID     string
	Name   string
	Driver string
	Labels map[string]string
}

type Volume struct {
	Name   string
	Labels map[string]string
}

// ContainerConfig is everything needed to create one container.
type ContainerConfig struct {
	Name       string
	Service    string
	Image      string
	Cmd        []string
	WorkingDir string
	Env        []string // KEY=value, sorted
	Ports      []PortBinding
	Mounts     []Mount
	Networks   []NetworkAttachment
	Labels     map[string]string
}

type PortBinding struct {
	Host      int
	Container int
	Protocol  string
}

type Mount struct {
	Type   string // "volume" or "bind"
	Source string
	Target string
}

type NetworkAttachment struct {
	Name  string
	Alias string
}

type NetworkConfig struct {
	Name   string
	Driver string
	Labels map[string]string
}

type VolumeConfig struct {
	Name   string
	Labels map[string]string
}

// Error wraps a runtime failure with the operation and the resource it
// concerned. The reconciler treats these as transient and retries within
// its budget.
type Error struct {
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Resource: resource, Err: err}
}
