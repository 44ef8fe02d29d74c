package reconcile

import (
	"github.com/PierreExeter/stackup/internal/manifest"
	"github.com/PierreExeter/stackup/internal/runtime"
)

type OpKind string

const (
	OpCreateNetwork     OpKind = "create-network"
	OpCreateVolume      OpKind = "create-volume"
	OpCreateContainer   OpKind = "create-container"
	OpRecreateContainer OpKind = "recreate-container"
	OpStartContainer    OpKind = "start-container"
	OpRemoveContainer   OpKind = "remove-container"
)

// Operation is one mutation the reconciler intends to perform. Name is
// the service, network or volume name, depending on Kind.
type Operation struct {
	Kind   OpKind `json:"kind"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// Plan is the ordered set of mutations that converges observed state to
// desired state. Container operations appear in dependency start order.
type Plan struct {
	Operations []Operation `json:"operations"`
	Unchanged  []string    `json:"unchanged,omitempty"`
}

// Empty reports whether the stack is already converged.
func (p *Plan) Empty() bool { return len(p.Operations) == 0 }

// Observed is the current runtime state of one project's resources,
// keyed for diffing: containers by service label, networks and volumes
// by name.
type Observed struct {
	Containers map[string]runtime.Container
	Networks   map[string]runtime.Network
	Volumes    map[string]runtime.Volume
}

// Diff computes the minimal plan. Networks and volumes are
// create-if-absent and never deleted here; containers are created,
// started, recreated on fingerprint drift, or removed when their service
// is no longer desired.
func Diff(state *manifest.DesiredState, obs Observed, startOrder []string, fps map[string]string) *Plan {
	pl := &Plan{}

	for _, n := range state.Networks {
		if _, ok := obs.Networks[n.Name]; ok {
			pl.Unchanged = append(pl.Unchanged, "network "+n.Name)
			continue
		}
		pl.Operations = append(pl.Operations, Operation{Kind: OpCreateNetwork, Name: n.Name})
	}
	for _, v := range state.Volumes {
		if _, ok := obs.Volumes[v.Name]; ok {
			pl.Unchanged = append(pl.Unchanged, "volume "+v.Name)
			continue
		}
		pl.Operations = append(pl.Operations, Operation{Kind: OpCreateVolume, Name: v.Name})
	}

	// Containers whose service was removed from the manifest. Their
	// volumes and networks stay; only explicit teardown touches those.
	for _, service := range sortedKeys(obs.Containers) {
		if _, ok := state.Service(service); !ok {
			pl.Operations = append(pl.Operations, Operation{
				Kind: OpRemoveContainer, Name: service, Reason: "service no longer in manifest",
			})
		}
	}

	for _, name := range startOrder {
		observed, ok := obs.Containers[name]
		switch {
		case !ok:
			pl.Operations = append(pl.Operations, Operation{Kind: OpCreateContainer, Name: name})
		case observed.Fingerprint() != fps[name]:
			pl.Operations = append(pl.Operations, Operation{
				Kind: OpRecreateContainer, Name: name, Reason: "configuration drift",
			})
		case !observed.Running():
			pl.Operations = append(pl.Operations, Operation{
				Kind: OpStartContainer, Name: name, Reason: "container stopped",
			})
		default:
			pl.Unchanged = append(pl.Unchanged, "service "+name)
		}
	}
	return pl
}
