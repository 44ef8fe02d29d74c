package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	e := NewEngine()
	data := Context{
		Project: "shop",
		Env:     map[string]string{"TAG": "1.2"},
		Git:     GitInfo{ShortSHA: "abc123def456"},
	}

	out, err := e.RenderString("t", `image: shop/app:{{ .Env.TAG }} # {{ .Project }}@{{ .Git.ShortSHA }}`, data)
	require.NoError(t, err)
	assert.Equal(t, "image: shop/app:1.2 # shop@abc123def456", out)
}

func TestRenderSprigFunctions(t *testing.T) {
	e := NewEngine()
	out, err := e.RenderString("t", `{{ "Shop" | lower }}-{{ default "latest" .Env.TAG }}`, Context{Env: map[string]string{"TAG": ""}})
	require.NoError(t, err)
	assert.Equal(t, "shop-latest", out)
}

func TestRenderRequired(t *testing.T) {
	e := NewEngine()
	_, err := e.RenderString("t", `{{ required "TAG must be set" .Env.TAG }}`, Context{Env: map[string]string{"TAG": ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAG must be set")

	out, err := e.RenderString("t", `{{ required "TAG must be set" .Env.TAG }}`, Context{Env: map[string]string{"TAG": "9"}})
	require.NoError(t, err)
	assert.Equal(t, "9", out)
}

func TestRenderParseError(t *testing.T) {
	e := NewEngine()
	_, err := e.RenderString("t", `{{ unterminated`, Context{})
	assert.Error(t, err)
}
