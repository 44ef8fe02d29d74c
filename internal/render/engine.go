// Package render pre-renders templated manifests through text/template
// before they are parsed. Rendering is opt-in; plain manifests skip it.
package render

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Context is the data available to manifest templates.
type Context struct {
	Project string
	Env     map[string]string
	Git     GitInfo
}

type GitInfo struct {
	ShortSHA string
}

// Engine renders templates with the sprig function set.
type Engine struct {
	funcs template.FuncMap
}

func NewEngine() *Engine {
	fm := sprig.TxtFuncMap()
	fm["required"] = func(msg string, v any) (any, error) {
		if v == nil {
			return nil, fmt.Errorf("%s", msg)
		}
		if s, ok := v.(string); ok && s == "" {
			return nil, fmt.Errorf("%s", msg)
		}
		return v, nil
	}
	return &Engine{funcs: fm}
}

// RenderString renders a template held in memory.
func (e *Engine) RenderString(name, tpl string, data Context) (string, error) {
	t, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderFile renders the template at path.
func (e *Engine) RenderFile(path string, data Context) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := e.RenderString(path, string(b), data)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
