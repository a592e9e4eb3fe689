// Package schema validates documents against JSON Schemas, either from disk
// or from the envelope schemas built into attestview.
package schema

import (
	"embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Built-in schema names.
const (
	DSSE     = "dsse"
	InToto   = "intoto"
	Sigstore = "sigstore"
)

//go:embed schemas/*.schema.json
var builtin embed.FS

// Validate checks doc against the schema file at schemaPath. doc must be
// something encoding/json can marshal.
func Validate(schemaPath string, doc any) ([]string, error) {
	schemaLoader := gojsonschema.NewReferenceLoader("file://" + schemaPath)
	return validate(schemaPath, schemaLoader, doc)
}

// ValidateBuiltin checks doc against one of the embedded schemas.
func ValidateBuiltin(name string, doc any) ([]string, error) {
	raw, err := builtin.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin schema %q", name)
	}
	return validate(name, gojsonschema.NewBytesLoader(raw), doc)
}

// Builtins lists the embedded schema names.
func Builtins() []string {
	entries, _ := builtin.ReadDir("schemas")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		out = append(out, name[:len(name)-len(".schema.json")])
	}
	sort.Strings(out)
	return out
}

func validate(label string, schemaLoader gojsonschema.JSONLoader, doc any) ([]string, error) {
	docLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", label, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
