package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PierreExeter/stackup/internal/manifest"
)

func TestServiceFingerprintStable(t *testing.T) {
	a := manifest.ServiceSpec{
		Name:  "app",
		Image: "shop/app:1.2",
		Env:   map[string]string{"A": "1", "B": "2", "C": "3"},
		Ports: []manifest.PortMapping{{Host: 80, Container: 8080, Protocol: "tcp"}},
	}
	// Same configuration built independently hashes identically.
	b := manifest.ServiceSpec{
		Name:  "app",
		Image: "shop/app:1.2",
		Env:   map[string]string{"C": "3", "B": "2", "A": "1"},
		Ports: []manifest.PortMapping{{Host: 80, Container: 8080, Protocol: "tcp"}},
	}
	assert.Equal(t, ServiceFingerprint(a), ServiceFingerprint(b))
}

func TestServiceFingerprintDetectsDrift(t *testing.T) {
	base := manifest.ServiceSpec{Name: "app", Image: "shop/app:1.2", Env: map[string]string{"A": "1"}}

	image := base
	image.Image = "shop/app:1.3"
	assert.NotEqual(t, ServiceFingerprint(base), ServiceFingerprint(image))

	env := base
	env.Env = map[string]string{"A": "2"}
	assert.NotEqual(t, ServiceFingerprint(base), ServiceFingerprint(env))

	cmd := base
	cmd.Command = []string{"./server"}
	assert.NotEqual(t, ServiceFingerprint(base), ServiceFingerprint(cmd))
}

func TestServiceFingerprintIgnoresDependsOn(t *testing.T) {
	base := manifest.ServiceSpec{Name: "app", Image: "shop/app:1.2"}
	withDep := base
	withDep.DependsOn = []string{"mysql"}
	assert.Equal(t, ServiceFingerprint(base), ServiceFingerprint(withDep))
}
