package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectOutsideRepository(t *testing.T) {
	// Revisions are best effort: no git tree means no revision, no error.
	assert.Equal(t, "", Detect(t.TempDir()))
}
