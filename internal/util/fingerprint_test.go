package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint([]byte("hello")))
	assert.NotEqual(t, a, Fingerprint([]byte("hello ")))
}

func TestFingerprintJSON(t *testing.T) {
	type shape struct {
		Image string   `json:"image"`
		Ports []string `json:"ports"`
	}
	a, err := FingerprintJSON(shape{Image: "app:1", Ports: []string{"80:80"}})
	require.NoError(t, err)
	b, err := FingerprintJSON(shape{Image: "app:1", Ports: []string{"80:80"}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := FingerprintJSON(shape{Image: "app:2", Ports: []string{"80:80"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFingerprintJSONUnmarshalable(t *testing.T) {
	_, err := FingerprintJSON(func() {})
	assert.Error(t, err)
}
