// Package graph derives a deterministic start order over the services of
// a desired state. An edge A→B means B must be running before A starts.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PierreExeter/stackup/internal/manifest"
)

// Graph holds the dependency relation and the computed start order.
type Graph struct {
	order []string
	deps  map[string][]string
}

// CycleError reports a dependency cycle, naming the participating services.
type CycleError struct {
	Services []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between services: %s", strings.Join(e.Services, ", "))
}

// Build derives edges from explicit depends_on declarations and from
// environment values that reference another service's name or network
// alias, then topologically sorts the services. Services with no ordering
// constraint keep their manifest declaration order.
func Build(state *manifest.DesiredState) (*Graph, error) {
	index := make(map[string]int, len(state.Services))
	for i, svc := range state.Services {
		index[svc.Name] = i
	}

	// aliasOwner maps every name a service is reachable under to the service.
	aliasOwner := map[string]string{}
	for _, svc := range state.Services {
		aliasOwner[svc.Name] = svc.Name
		for _, att := range svc.Networks {
			if att.Alias != "" {
				aliasOwner[att.Alias] = svc.Name
			}
		}
	}

	deps := make(map[string][]string, len(state.Services))
	for _, svc := range state.Services {
		set := map[string]bool{}
		for _, dep := range svc.DependsOn {
			set[dep] = true
		}
		// Implicit edges: an env value naming another service (or one of
		// its aliases) means this service expects to resolve it as a host.
		for _, val := range svc.Env {
			if owner, ok := aliasOwner[val]; ok && owner != svc.Name {
				set[owner] = true
			}
		}
		names := make([]string, 0, len(set))
		for dep := range set {
			names = append(names, dep)
		}
		sort.Slice(names, func(i, j int) bool { return index[names[i]] < index[names[j]] })
		deps[svc.Name] = names
	}

	order, err := topoSort(state, index, deps)
	if err != nil {
		return nil, err
	}
	return &Graph{order: order, deps: deps}, nil
}

// StartOrder returns the service names in a total order consistent with
// every dependency edge.
func (g *Graph) StartOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// StopOrder is the reverse of StartOrder, for teardown.
func (g *Graph) StopOrder() []string {
	out := make([]string, len(g.order))
	for i, name := range g.order {
		out[len(out)-1-i] = name
	}
	return out
}

// Dependencies returns the services that must be running before name starts.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// topoSort runs Kahn's algorithm, always picking the ready service that
// appears earliest in the manifest. The result is stable across runs.
func topoSort(state *manifest.DesiredState, index map[string]int, deps map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(state.Services))
	dependents := map[string][]string{}
	for name, ds := range deps {
		indegree[name] = len(ds)
		for _, dep := range ds {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, svc := range state.Services {
		if indegree[svc.Name] == 0 {
			ready = append(ready, svc.Name)
		}
	}

	order := make([]string, 0, len(state.Services))
	for len(ready) > 0 {
		// Lowest manifest index first keeps the tie-break deterministic.
		best := 0
		for i := range ready {
			if index[ready[i]] < index[ready[best]] {
				best = i
			}
		}
		next := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < len(state.Services) {
		leftover := map[string]bool{}
		for _, svc := range state.Services {
			if indegree[svc.Name] > 0 {
				leftover[svc.Name] = true
			}
		}
		// Kahn already peeled everything upstream of the cycle. The
		// leftovers still include services merely downstream of it, so
		// peel those too: a service nothing left depends on cannot be a
		// cycle member.
		for changed := true; changed; {
			changed = false
			for name := range leftover {
				needed := false
				for other := range leftover {
					for _, dep := range deps[other] {
						if dep == name {
							needed = true
						}
					}
				}
				if !needed {
					delete(leftover, name)
					changed = true
				}
			}
		}
		var cycle []string
		for _, svc := range state.Services {
			if leftover[svc.Name] {
				cycle = append(cycle, svc.Name)
			}
		}
		return nil, &CycleError{Services: cycle}
	}
	return order, nil
}
