package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "shop-app", ContainerName("shop", "app"))
	assert.Equal(t, "shop-backend", NetworkName("shop", "backend"))
	assert.Equal(t, "shop-dbdata", VolumeName("shop", "dbdata"))
}

func TestStackLabels(t *testing.T) {
	lbls := StackLabels("shop", "abc123")
	assert.Equal(t, OwnerValue, lbls[LabelOwner])
	assert.Equal(t, "shop", lbls[LabelProject])
	assert.Equal(t, "abc123", lbls[LabelRevision])

	// Outside a git tree there is no revision label at all.
	lbls = StackLabels("shop", "")
	_, ok := lbls[LabelRevision]
	assert.False(t, ok)
}

func TestServiceLabels(t *testing.T) {
	lbls := ServiceLabels("shop", "app", "fp-1", "abc123")
	assert.Equal(t, "app", lbls[LabelService])
	assert.Equal(t, "fp-1", lbls[LabelFingerprint])
	assert.Equal(t, OwnerValue, lbls[LabelOwner])
}

func TestContainerFingerprint(t *testing.T) {
	c := Container{Labels: ServiceLabels("shop", "app", "fp-1", "")}
	assert.Equal(t, "fp-1", c.Fingerprint())

	// Containers created outside stackup carry no fingerprint.
	foreign := Container{Labels: map[string]string{"com.example": "x"}}
	assert.Equal(t, "", foreign.Fingerprint())
}

func TestContainerRunning(t *testing.T) {
	assert.True(t, Container{State: "running"}.Running())
	assert.False(t, Container{State: "exited"}.Running())
	assert.False(t, Container{State: "created"}.Running())
}
