package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// DefaultFiles are the manifest file names probed, in order, when no
// explicit path is given.
var DefaultFiles = []string{"stackup.yaml", "stackup.yml", "docker-compose.yml", "compose.yaml"}

// Options controls parsing of a manifest document.
type Options struct {
	// Project names the stack; resources are labeled with it. Defaults to
	// the sanitized base name of Dir.
	Project string
	// Dir is the directory the manifest was loaded from. Relative bind
	// mount sources are resolved against it.
	Dir string
	// Lookup resolves ${VAR} interpolation. Nil means every variable is unset.
	Lookup Lookup
}

// Load reads, interpolates and validates a manifest file. A .env file next
// to the manifest (or the explicit envFile) supplies interpolation
// variables, with the process environment taking precedence.
func Load(path, project, envFile string) (*DesiredState, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	dir := filepath.Dir(abs)
	if envFile == "" {
		if candidate := filepath.Join(dir, ".env"); fileExists(candidate) {
			envFile = candidate
		}
	}
	lookup, err := EnvLookup(envFile)
	if err != nil {
		return nil, err
	}
	// Project precedence: explicit argument, then the manifest's name
	// key (applied inside Parse), then the manifest directory.
	state, err := Parse(data, Options{Project: project, Dir: dir, Lookup: lookup})
	if err != nil {
		return nil, err
	}
	if state.Project == "" {
		state.Project = SanitizeProject(filepath.Base(dir))
	}
	return state, nil
}

// Locate probes dir for a manifest with one of the default file names.
func Locate(dir string) (string, error) {
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no manifest found in %s (tried %s)", dir, strings.Join(DefaultFiles, ", "))
}

// SanitizeProject lowercases a name and squashes characters that are not
// valid in container or network names.
func SanitizeProject(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-_")
}

// Parse converts manifest text into a DesiredState. It fails with
// *MalformedError on invalid YAML and *SchemaError on any schema
// violation; no partially valid state is ever returned.
func Parse(data []byte, opts Options) (*DesiredState, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &MalformedError{Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, schemaErrf("(root)", "document is empty")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, schemaErrf("(root)", "manifest root must be a mapping")
	}

	p := &parser{opts: opts}
	state := &DesiredState{Project: opts.Project}

	err := eachKey(top, "(root)", func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			name, err := p.scalar(val, "name")
			if err != nil {
				return err
			}
			if opts.Project == "" {
				state.Project = SanitizeProject(name)
			}
		case "services":
			svcs, err := p.services(val)
			if err != nil {
				return err
			}
			state.Services = svcs
		case "networks":
			nets, err := p.networks(val)
			if err != nil {
				return err
			}
			state.Networks = nets
		case "volumes":
			vols, err := p.volumes(val)
			if err != nil {
				return err
			}
			state.Volumes = vols
		default:
			return schemaErrf(key, "unknown key")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := validateReferences(state); err != nil {
		return nil, err
	}
	return state, nil
}

type parser struct {
	opts Options
}

// scalar returns the interpolated value of a scalar node.
func (p *parser) scalar(n *yaml.Node, path string) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", schemaErrf(path, "expected a scalar value")
	}
	return Interpolate(n.Value, p.opts.Lookup)
}

func (p *parser) stringSeq(n *yaml.Node, path string) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, schemaErrf(path, "expected a list")
	}
	out := make([]string, 0, len(n.Content))
	for i, item := range n.Content {
		s, err := p.scalar(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *parser) services(n *yaml.Node) ([]ServiceSpec, error) {
	if n.Kind != yaml.MappingNode {
		return nil, schemaErrf("services", "expected a mapping of service name to definition")
	}
	var out []ServiceSpec
	err := eachKey(n, "services", func(name string, val *yaml.Node) error {
		if !validName(name) {
			return schemaErrf("services."+name, "invalid service name")
		}
		svc, err := p.service(name, val)
		if err != nil {
			return err
		}
		out = append(out, svc)
		return nil
	})
	return out, err
}

func (p *parser) service(name string, n *yaml.Node) (ServiceSpec, error) {
	svc := ServiceSpec{Name: name, Env: map[string]string{}}
	path := "services." + name
	if n.Kind != yaml.MappingNode {
		return svc, schemaErrf(path, "expected a mapping")
	}
	err := eachKey(n, path, func(key string, val *yaml.Node) error {
		switch key {
		case "image":
			img, err := p.scalar(val, path+".image")
			if err != nil {
				return err
			}
			svc.Image = img
		case "command":
			cmd, err := p.command(val, path+".command")
			if err != nil {
				return err
			}
			svc.Command = cmd
		case "working_dir":
			wd, err := p.scalar(val, path+".working_dir")
			if err != nil {
				return err
			}
			svc.WorkingDir = wd
		case "ports":
			specs, err := p.stringSeq(val, path+".ports")
			if err != nil {
				return err
			}
			for i, spec := range specs {
				pm, err := parsePort(spec, fmt.Sprintf("%s.ports[%d]", path, i))
				if err != nil {
					return err
				}
				svc.Ports = append(svc.Ports, pm)
			}
		case "environment":
			env, err := p.environment(val, path+".environment")
			if err != nil {
				return err
			}
			svc.Env = env
		case "volumes":
			specs, err := p.stringSeq(val, path+".volumes")
			if err != nil {
				return err
			}
			for i, spec := range specs {
				m, err := p.mount(spec, fmt.Sprintf("%s.volumes[%d]", path, i))
				if err != nil {
					return err
				}
				svc.Mounts = append(svc.Mounts, m)
			}
		case "networks":
			atts, err := p.networkAttachments(val, path+".networks")
			if err != nil {
				return err
			}
			svc.Networks = atts
		case "depends_on":
			deps, err := p.stringSeq(val, path+".depends_on")
			if err != nil {
				return err
			}
			svc.DependsOn = deps
		default:
			return schemaErrf(path+"."+key, "unknown key")
		}
		return nil
	})
	if err != nil {
		return svc, err
	}
	if svc.Image == "" {
		return svc, schemaErrf(path+".image", "image is required")
	}
	for i := range svc.Networks {
		if svc.Networks[i].Alias == "" {
			svc.Networks[i].Alias = name
		}
	}
	return svc, nil
}

// command accepts the exec form (list of strings) or a plain string that
// is split on whitespace.
func (p *parser) command(n *yaml.Node, path string) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		s, err := p.scalar(n, path)
		if err != nil {
			return nil, err
		}
		return strings.Fields(s), nil
	case yaml.SequenceNode:
		return p.stringSeq(n, path)
	default:
		return nil, schemaErrf(path, "expected a string or a list of strings")
	}
}

// environment accepts the mapping form (keys to scalar values) or the list
// form ("KEY=value"). Nested structures and duplicate keys are rejected.
func (p *parser) environment(n *yaml.Node, path string) (map[string]string, error) {
	env := map[string]string{}
	switch n.Kind {
	case yaml.MappingNode:
		err := eachKey(n, path, func(key string, val *yaml.Node) error {
			if val.Kind != yaml.ScalarNode || val.Tag == "!!null" {
				return schemaErrf(path+"."+key, "environment values must be scalar strings")
			}
			v, err := Interpolate(val.Value, p.opts.Lookup)
			if err != nil {
				return err
			}
			env[key] = v
			return nil
		})
		return env, err
	case yaml.SequenceNode:
		items, err := p.stringSeq(n, path)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			key, val, ok := strings.Cut(item, "=")
			if !ok || key == "" {
				return nil, schemaErrf(fmt.Sprintf("%s[%d]", path, i), "expected KEY=value")
			}
			if _, dup := env[key]; dup {
				return nil, schemaErrf(fmt.Sprintf("%s[%d]", path, i), "duplicate environment key %q", key)
			}
			env[key] = val
		}
		return env, nil
	default:
		return nil, schemaErrf(path, "expected a mapping or a list")
	}
}

// mount parses a "source:target" entry. Sources that look like paths
// become bind mounts, anything else refers to a named volume.
func (p *parser) mount(spec, path string) (Mount, error) {
	src, target, ok := strings.Cut(spec, ":")
	if !ok || src == "" || target == "" || strings.Contains(target, ":") {
		return Mount{}, schemaErrf(path, "expected source:target, got %q", spec)
	}
	if !strings.HasPrefix(target, "/") {
		return Mount{}, schemaErrf(path, "target must be an absolute path")
	}
	if isHostPath(src) {
		if !filepath.IsAbs(src) {
			src = filepath.Join(p.opts.Dir, src)
		}
		return Mount{Type: MountTypeBind, Source: filepath.Clean(src), Target: target}, nil
	}
	if !validName(src) {
		return Mount{}, schemaErrf(path, "invalid volume name %q", src)
	}
	return Mount{Type: MountTypeVolume, Source: src, Target: target}, nil
}

// isHostPath reports whether a mount source refers to the host
// filesystem rather than a named volume.
func isHostPath(src string) bool {
	return filepath.IsAbs(src) ||
		strings.HasPrefix(src, "./") ||
		strings.HasPrefix(src, "../") ||
		strings.HasPrefix(src, "~/")
}

func (p *parser) networkAttachments(n *yaml.Node, path string) ([]NetworkAttachment, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		names, err := p.stringSeq(n, path)
		if err != nil {
			return nil, err
		}
		atts := make([]NetworkAttachment, 0, len(names))
		for _, name := range names {
			atts = append(atts, NetworkAttachment{Name: name})
		}
		return atts, nil
	case yaml.MappingNode:
		var atts []NetworkAttachment
		err := eachKey(n, path, func(name string, val *yaml.Node) error {
			att := NetworkAttachment{Name: name}
			if val.Tag != "!!null" {
				if val.Kind != yaml.MappingNode {
					return schemaErrf(path+"."+name, "expected a mapping or null")
				}
				err := eachKey(val, path+"."+name, func(key string, v *yaml.Node) error {
					if key != "alias" {
						return schemaErrf(path+"."+name+"."+key, "unknown key")
					}
					alias, err := p.scalar(v, path+"."+name+".alias")
					if err != nil {
						return err
					}
					att.Alias = alias
					return nil
				})
				if err != nil {
					return err
				}
			}
			atts = append(atts, att)
			return nil
		})
		return atts, err
	default:
		return nil, schemaErrf(path, "expected a list or a mapping")
	}
}

func (p *parser) networks(n *yaml.Node) ([]NetworkSpec, error) {
	if n.Kind != yaml.MappingNode {
		return nil, schemaErrf("networks", "expected a mapping")
	}
	var out []NetworkSpec
	err := eachKey(n, "networks", func(name string, val *yaml.Node) error {
		if !validName(name) {
			return schemaErrf("networks."+name, "invalid network name")
		}
		spec := NetworkSpec{Name: name, Driver: "bridge"}
		if val.Tag != "!!null" {
			if val.Kind != yaml.MappingNode {
				return schemaErrf("networks."+name, "expected a mapping or null")
			}
			err := eachKey(val, "networks."+name, func(key string, v *yaml.Node) error {
				if key != "driver" {
					return schemaErrf("networks."+name+"."+key, "unknown key")
				}
				driver, err := p.scalar(v, "networks."+name+".driver")
				if err != nil {
					return err
				}
				spec.Driver = driver
				return nil
			})
			if err != nil {
				return err
			}
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func (p *parser) volumes(n *yaml.Node) ([]VolumeSpec, error) {
	if n.Kind != yaml.MappingNode {
		return nil, schemaErrf("volumes", "expected a mapping")
	}
	var out []VolumeSpec
	err := eachKey(n, "volumes", func(name string, val *yaml.Node) error {
		if !validName(name) {
			return schemaErrf("volumes."+name, "invalid volume name")
		}
		if val.Tag != "!!null" && !(val.Kind == yaml.MappingNode && len(val.Content) == 0) {
			return schemaErrf("volumes."+name, "volume definitions take no options")
		}
		out = append(out, VolumeSpec{Name: name})
		return nil
	})
	return out, err
}

// parsePort validates a "host:container" pair. Ranges, bare container
// ports and host IP prefixes are rejected.
func parsePort(spec, path string) (PortMapping, error) {
	mappings, err := nat.ParsePortSpec(spec)
	if err != nil {
		return PortMapping{}, schemaErrf(path, "invalid port mapping %q: %v", spec, err)
	}
	if len(mappings) != 1 {
		return PortMapping{}, schemaErrf(path, "port ranges are not supported in %q", spec)
	}
	m := mappings[0]
	if m.Binding.HostIP != "" {
		return PortMapping{}, schemaErrf(path, "host IP is not supported in %q", spec)
	}
	host, err := strconv.Atoi(m.Binding.HostPort)
	if err != nil {
		return PortMapping{}, schemaErrf(path, "expected host:container integer pair, got %q", spec)
	}
	return PortMapping{Host: host, Container: m.Port.Int(), Protocol: m.Port.Proto()}, nil
}

// validateReferences enforces referential integrity: every network
// attachment, named-volume mount and depends_on entry must point at a
// declaration in the same state.
func validateReferences(state *DesiredState) error {
	for _, svc := range state.Services {
		path := "services." + svc.Name
		for _, att := range svc.Networks {
			if !state.HasNetwork(att.Name) {
				return schemaErrf(path+".networks", "undeclared network %q", att.Name)
			}
		}
		for _, m := range svc.Mounts {
			if m.Type == MountTypeVolume && !state.HasVolume(m.Source) {
				return schemaErrf(path+".volumes", "undeclared volume %q", m.Source)
			}
		}
		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				return schemaErrf(path+".depends_on", "service depends on itself")
			}
			if _, ok := state.Service(dep); !ok {
				return schemaErrf(path+".depends_on", "undeclared service %q", dep)
			}
		}
	}
	return nil
}

// eachKey iterates a mapping node in declaration order, rejecting
// duplicate keys.
func eachKey(n *yaml.Node, path string, fn func(key string, val *yaml.Node) error) error {
	seen := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		if key.Kind != yaml.ScalarNode {
			return schemaErrf(path, "mapping keys must be strings")
		}
		if seen[key.Value] {
			return schemaErrf(path+"."+key.Value, "duplicate name %q", key.Value)
		}
		seen[key.Value] = true
		if err := fn(key.Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
