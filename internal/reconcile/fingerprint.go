package reconcile

// Order-independent projection of a service's configuration for stable
// fingerprinting. Go map iteration is randomized, so maps and attachment
// sets are flattened into sorted slices before hashing.

import (
	"fmt"
	"sort"

	"github.com/PierreExeter/stackup/internal/manifest"
	"github.com/PierreExeter/stackup/internal/util"
)

type normalizedService struct {
	Image      string   `json:"image"`
	Command    []string `json:"command,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty"`
	Ports      []string `json:"ports,omitempty"`
	Mounts     []string `json:"mounts,omitempty"`
	Env        []kv     `json:"env,omitempty"`
	Networks   []string `json:"networks,omitempty"`
}

type kv struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ServiceFingerprint hashes the drift-relevant configuration of a
// service: image, command, env, ports, mounts and network attachments.
// depends_on is ordering metadata, not container configuration, so it is
// deliberately excluded; reordering a stack never recreates containers.
func ServiceFingerprint(s manifest.ServiceSpec) string {
	n := normalizedService{
		Image:      s.Image,
		Command:    append([]string{}, s.Command...),
		WorkingDir: s.WorkingDir,
	}

	for _, p := range s.Ports {
		n.Ports = append(n.Ports, fmt.Sprintf("%d:%d/%s", p.Host, p.Container, p.Protocol))
	}
	sort.Strings(n.Ports)

	for _, m := range s.Mounts {
		n.Mounts = append(n.Mounts, fmt.Sprintf("%s:%s:%s", m.Type, m.Source, m.Target))
	}
	sort.Strings(n.Mounts)

	for k, v := range s.Env {
		n.Env = append(n.Env, kv{Key: k, Value: v})
	}
	sort.Slice(n.Env, func(i, j int) bool { return n.Env[i].Key < n.Env[j].Key })

	for _, att := range s.Networks {
		n.Networks = append(n.Networks, att.Name+":"+att.Alias)
	}
	sort.Strings(n.Networks)

	fp, err := util.FingerprintJSON(n)
	if err != nil {
		// normalizedService contains only strings; this cannot happen.
		panic(err)
	}
	return fp
}

func fingerprints(state *manifest.DesiredState) map[string]string {
	out := make(map[string]string, len(state.Services))
	for _, svc := range state.Services {
		out[svc.Name] = ServiceFingerprint(svc)
	}
	return out
}
