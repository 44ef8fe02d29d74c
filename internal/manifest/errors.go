package manifest

import "fmt"

// MalformedError reports input that is not a valid YAML document.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed manifest: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// SchemaError reports a syntactically valid document that violates the
// manifest schema: unknown keys, missing required fields, duplicate names,
// malformed port mappings, non-scalar environment values, or references to
// undeclared networks, volumes or services.
type SchemaError struct {
	Path   string // dotted location, e.g. "services.app.ports[0]"
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Reason)
}

func schemaErrf(path, format string, args ...any) *SchemaError {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
