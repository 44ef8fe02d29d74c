package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PierreExeter/stackup/internal/manifest"
	"github.com/PierreExeter/stackup/internal/runtime"
)

func planState() *manifest.DesiredState {
	return &manifest.DesiredState{
		Project: "shop",
		Services: []manifest.ServiceSpec{
			{Name: "mysql", Image: "mysql:8.4"},
			{Name: "app", Image: "shop/app:1.2", DependsOn: []string{"mysql"}},
		},
		Networks: []manifest.NetworkSpec{{Name: "backend", Driver: "bridge"}},
		Volumes:  []manifest.VolumeSpec{{Name: "dbdata"}},
	}
}

func observedContainer(service, fp, state string) runtime.Container {
	return runtime.Container{
		ID:      "id-" + service,
		Name:    "shop-" + service,
		Service: service,
		State:   state,
		Labels:  map[string]string{runtime.LabelFingerprint: fp},
	}
}

func TestDiffFreshStack(t *testing.T) {
	state := planState()
	fps := fingerprints(state)
	obs := Observed{Containers: map[string]runtime.Container{}, Networks: map[string]runtime.Network{}, Volumes: map[string]runtime.Volume{}}

	pl := Diff(state, obs, []string{"mysql", "app"}, fps)
	require.Len(t, pl.Operations, 4)
	assert.Equal(t, OpCreateNetwork, pl.Operations[0].Kind)
	assert.Equal(t, OpCreateVolume, pl.Operations[1].Kind)
	assert.Equal(t, Operation{Kind: OpCreateContainer, Name: "mysql"}, pl.Operations[2])
	assert.Equal(t, Operation{Kind: OpCreateContainer, Name: "app"}, pl.Operations[3])
	assert.False(t, pl.Empty())
}

func TestDiffConvergedStack(t *testing.T) {
	state := planState()
	fps := fingerprints(state)
	obs := Observed{
		Containers: map[string]runtime.Container{
			"mysql": observedContainer("mysql", fps["mysql"], "running"),
			"app":   observedContainer("app", fps["app"], "running"),
		},
		Networks: map[string]runtime.Network{"backend": {Name: "shop-backend"}},
		Volumes:  map[string]runtime.Volume{"dbdata": {Name: "shop-dbdata"}},
	}

	pl := Diff(state, obs, []string{"mysql", "app"}, fps)
	assert.True(t, pl.Empty())
	assert.Len(t, pl.Unchanged, 4)
}

func TestDiffDriftAndStopped(t *testing.T) {
	state := planState()
	fps := fingerprints(state)
	obs := Observed{
		Containers: map[string]runtime.Container{
			"mysql": observedContainer("mysql", fps["mysql"], "exited"),
			"app":   observedContainer("app", "stale-fingerprint", "running"),
		},
		Networks: map[string]runtime.Network{"backend": {Name: "shop-backend"}},
		Volumes:  map[string]runtime.Volume{"dbdata": {Name: "shop-dbdata"}},
	}

	pl := Diff(state, obs, []string{"mysql", "app"}, fps)
	require.Len(t, pl.Operations, 2)
	assert.Equal(t, OpStartContainer, pl.Operations[0].Kind)
	assert.Equal(t, "mysql", pl.Operations[0].Name)
	assert.Equal(t, OpRecreateContainer, pl.Operations[1].Kind)
	assert.Equal(t, "app", pl.Operations[1].Name)
}

func TestDiffOrphanedService(t *testing.T) {
	state := planState()
	fps := fingerprints(state)
	obs := Observed{
		Containers: map[string]runtime.Container{
			"legacy": observedContainer("legacy", "whatever", "running"),
		},
		Networks: map[string]runtime.Network{"backend": {Name: "shop-backend"}},
		Volumes:  map[string]runtime.Volume{"dbdata": {Name: "shop-dbdata"}},
	}

	pl := Diff(state, obs, []string{"mysql", "app"}, fps)
	require.Len(t, pl.Operations, 3)
	assert.Equal(t, Operation{Kind: OpRemoveContainer, Name: "legacy", Reason: "service no longer in manifest"}, pl.Operations[0])
	// The orphan's volumes and networks stay untouched.
	assert.Equal(t, OpCreateContainer, pl.Operations[1].Kind)
	assert.Equal(t, OpCreateContainer, pl.Operations[2].Kind)
}
