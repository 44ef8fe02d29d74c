package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]string{
		"HOST":  "db.internal",
		"EMPTY": "",
	}
	lookup := func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${HOST}", "db.internal"},
		{"tcp://${HOST}:5432", "tcp://db.internal:5432"},
		{"${MISSING}", ""},
		{"${MISSING-default}", "default"},
		{"${MISSING:-default}", "default"},
		{"${EMPTY-default}", ""},        // set but empty: "-" keeps it
		{"${EMPTY:-default}", "default"}, // ":-" replaces empty
		{"${HOST:-other}", "db.internal"},
		{"$$HOST", "$HOST"},
		{"$HOST", "$HOST"}, // bare references are not interpolation
		{"a$$b${HOST}c", "a$bdb.internalc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Interpolate(tt.in, lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolateNilLookup(t *testing.T) {
	got, err := Interpolate("${ANY:-x}", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}
