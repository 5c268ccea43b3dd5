// Package paramschema offers optional JSON Schema validation for a
// callable leaf's RPC parameters, applied to a get's params argument
// instead of a document body before it's stored.
package paramschema

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/entangld-go/entangld/entangleerr"
)

// Schema wraps a compiled JSON Schema.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile loads and compiles the schema at uri, which may be a file
// path or any URI the jsonschema package's default loader understands.
func Compile(uri string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(uri)
	if err != nil {
		return nil, entangleerr.Wrap(entangleerr.KindInvalidArgument, "paramschema.Compile", uri, err)
	}
	return &Schema{compiled: compiled}, nil
}

// CompileString compiles a schema given inline as a JSON document
// rather than a file path, for tests and demo callables that don't
// want to ship a schema file alongside the binary. name only needs to
// be a stable resource identifier, not a real file path.
func CompileString(name, source string) (*Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, entangleerr.Wrap(entangleerr.KindInvalidArgument, "paramschema.CompileString", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, entangleerr.Wrap(entangleerr.KindInvalidArgument, "paramschema.CompileString", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, entangleerr.Wrap(entangleerr.KindInvalidArgument, "paramschema.CompileString", name, err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate reports whether params (typically a map[string]any decoded
// from a callable's Get argument) satisfies the schema.
func (s *Schema) Validate(params any) error {
	if err := s.compiled.Validate(params); err != nil {
		return entangleerr.Wrap(entangleerr.KindInvalidArgument, "paramschema.Validate", "", err)
	}
	return nil
}
