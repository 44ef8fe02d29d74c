package manifest

// MountType distinguishes named-volume mounts from host bind mounts.
type MountType string

const (
	MountTypeVolume MountType = "volume"
	MountTypeBind   MountType = "bind"
)

// DesiredState is the fully validated model of one manifest version.
// Slices preserve manifest declaration order; the graph builder relies on
// that order as its deterministic tie-break.
type DesiredState struct {
	Project  string
	Services []ServiceSpec
	Networks []NetworkSpec
	Volumes  []VolumeSpec
}

// Service returns the service with the given name, if declared.
func (d *DesiredState) Service(name string) (*ServiceSpec, bool) {
	for i := range d.Services {
		if d.Services[i].Name == name {
			return &d.Services[i], true
		}
	}
	return nil, false
}

// HasNetwork reports whether a top-level network with the given name is declared.
func (d *DesiredState) HasNetwork(name string) bool {
	for _, n := range d.Networks {
		if n.Name == name {
			return true
		}
	}
	return false
}

// HasVolume reports whether a top-level volume with the given name is declared.
func (d *DesiredState) HasVolume(name string) bool {
	for _, v := range d.Volumes {
		if v.Name == name {
			return true
		}
	}
	return false
}

// ServiceSpec describes one desired container. Immutable once parsed.
type ServiceSpec struct {
	Name       string
	Image      string
	Command    []string
	WorkingDir string
	Ports      []PortMapping
	Mounts     []Mount
	Env        map[string]string
	Networks   []NetworkAttachment
	DependsOn  []string
}

// PortMapping is a host:container published port pair.
type PortMapping struct {
	Host      int
	Container int
	Protocol  string // tcp unless stated otherwise
}

// Mount maps a named volume or a host path into the container.
type Mount struct {
	Type   MountType
	Source string // volume name or host path
	Target string // absolute path inside the container
}

// NetworkAttachment attaches a service to a declared network. Alias
// defaults to the service name so dependents can resolve it by name.
type NetworkAttachment struct {
	Name  string
	Alias string
}

type NetworkSpec struct {
	Name   string
	Driver string // "bridge" unless overridden
}

type VolumeSpec struct {
	Name string
}
