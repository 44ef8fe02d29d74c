package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PierreExeter/stackup/internal/manifest"
)

func svc(name string, deps []string, env map[string]string) manifest.ServiceSpec {
	return manifest.ServiceSpec{Name: name, Image: name + ":latest", DependsOn: deps, Env: env}
}

func TestStartOrderExplicitDeps(t *testing.T) {
	state := &manifest.DesiredState{
		Project: "shop",
		Services: []manifest.ServiceSpec{
			svc("app", []string{"mysql", "redis"}, nil),
			svc("mysql", nil, nil),
			svc("redis", nil, nil),
		},
	}
	g, err := Build(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "redis", "app"}, g.StartOrder())
	assert.Equal(t, []string{"app", "redis", "mysql"}, g.StopOrder())
	assert.Equal(t, []string{"mysql", "redis"}, g.Dependencies("app"))
}

func TestStartOrderImplicitEnvEdge(t *testing.T) {
	// app's DB_HOST names the mysql service; no depends_on is declared.
	state := &manifest.DesiredState{
		Project: "shop",
		Services: []manifest.ServiceSpec{
			svc("app", nil, map[string]string{"DB_HOST": "mysql"}),
			svc("mysql", nil, nil),
		},
	}
	g, err := Build(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "app"}, g.StartOrder())
	assert.Equal(t, []string{"mysql"}, g.Dependencies("app"))
}

func TestStartOrderImplicitAliasEdge(t *testing.T) {
	state := &manifest.DesiredState{
		Project: "shop",
		Services: []manifest.ServiceSpec{
			{Name: "app", Image: "app", Env: map[string]string{"DB_HOST": "db"}},
			{Name: "mysql", Image: "mysql", Networks: []manifest.NetworkAttachment{{Name: "backend", Alias: "db"}}},
		},
	}
	g, err := Build(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "app"}, g.StartOrder())
}

func TestStartOrderSelfReferenceIgnored(t *testing.T) {
	// An env value equal to the service's own name is not an edge.
	state := &manifest.DesiredState{
		Project: "p",
		Services: []manifest.ServiceSpec{
			svc("app", nil, map[string]string{"SELF": "app"}),
		},
	}
	g, err := Build(state)
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("app"))
}

func TestStartOrderManifestOrderTieBreak(t *testing.T) {
	// No edges at all: the order is exactly the declaration order.
	state := &manifest.DesiredState{
		Project: "p",
		Services: []manifest.ServiceSpec{
			svc("zeta", nil, nil),
			svc("alpha", nil, nil),
			svc("mid", nil, nil),
		},
	}
	g, err := Build(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, g.StartOrder())
}

func TestCycleError(t *testing.T) {
	state := &manifest.DesiredState{
		Project: "p",
		Services: []manifest.ServiceSpec{
			svc("a", []string{"b"}, nil),
			svc("b", []string{"a"}, nil),
			svc("free", nil, nil),
		},
	}
	_, err := Build(state)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "b"}, cerr.Services)
	assert.Contains(t, cerr.Error(), "a, b")
}

func TestCycleErrorExcludesDownstreamServices(t *testing.T) {
	// c (and d behind it) merely depend on the a<->b cycle; they are
	// blocked by it, not part of it, and must not be named.
	state := &manifest.DesiredState{
		Project: "p",
		Services: []manifest.ServiceSpec{
			svc("a", []string{"b"}, nil),
			svc("b", []string{"a"}, nil),
			svc("c", []string{"a"}, nil),
			svc("d", []string{"c"}, nil),
		},
	}
	_, err := Build(state)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "b"}, cerr.Services)
}

func TestCycleThroughImplicitEdge(t *testing.T) {
	state := &manifest.DesiredState{
		Project: "p",
		Services: []manifest.ServiceSpec{
			svc("a", []string{"b"}, nil),
			svc("b", nil, map[string]string{"PEER": "a"}),
		},
	}
	_, err := Build(state)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
}
