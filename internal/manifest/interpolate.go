package manifest

import (
	"fmt"
	"os"

	"github.com/dlclark/regexp2"
	"github.com/joho/godotenv"
)

// Interpolation follows the compose conventions: ${VAR}, ${VAR-default}
// (default when unset), ${VAR:-default} (default when unset or empty) and
// $$ as a literal dollar. Bare $VAR is left untouched.
var interpPattern = regexp2.MustCompile(
	`\$(?:\$|\{(?<name>[A-Za-z_][A-Za-z0-9_]*)(?:(?<op>:?-)(?<def>[^}]*))?\})`,
	regexp2.None,
)

// Lookup resolves an interpolation variable by name.
type Lookup func(name string) (string, bool)

// Interpolate substitutes ${VAR} references in a scalar value. Unset
// variables without a default expand to the empty string.
func Interpolate(s string, lookup Lookup) (string, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	out, err := interpPattern.ReplaceFunc(s, func(m regexp2.Match) string {
		if m.String() == "$$" {
			return "$"
		}
		name := m.GroupByName("name").String()
		val, ok := lookup(name)
		if op := m.GroupByName("op").String(); op != "" {
			if !ok || (op == ":-" && val == "") {
				return m.GroupByName("def").String()
			}
		}
		if !ok {
			return ""
		}
		return val
	}, -1, -1)
	if err != nil {
		return "", fmt.Errorf("interpolate %q: %w", s, err)
	}
	return out, nil
}

// EnvLookup builds the standard variable source for interpolation: the
// process environment layered over an optional dotenv file, process env
// taking precedence.
func EnvLookup(envFile string) (Lookup, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		fileVars = m
	}
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := fileVars[name]
		return v, ok
	}, nil
}
