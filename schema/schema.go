// Package schema validates decoded payload documents against the JSON
// Schema registered for their declared payload schema kind. Schemas are
// embedded in the binary and compiled once on first use.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// One schema file per payload schema kind.
var schemaFiles = map[string]string{
	"ISO20022": "schemas/iso20022.schema.json",
}

var (
	mu       sync.Mutex
	compiled = map[string]*jsonschema.Schema{}
)

// Validate checks doc against the schema registered for kind. doc must
// be a decoded JSON tree.
func Validate(kind string, doc any) error {
	sch, err := compiledSchema(kind)
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}

// Known reports whether a schema is registered for kind.
func Known(kind string) bool {
	_, ok := schemaFiles[kind]
	return ok
}

func compiledSchema(kind string) (*jsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()

	if sch, ok := compiled[kind]; ok {
		return sch, nil
	}

	path, ok := schemaFiles[kind]
	if !ok {
		return nil, fmt.Errorf("unknown payload schema %q", kind)
	}

	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema %s: %w", path, err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", path, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", path, err)
	}
	sch, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}

	compiled[kind] = sch
	return sch, nil
}
