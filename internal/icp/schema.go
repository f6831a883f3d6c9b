package icp

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaName is the name the schema is announced under in the finalize prompt.
const SchemaName = "ICP"

const schemaURL = "icp.schema.json"

//go:embed schema.json
var schemaJSON []byte

// compiled makes a malformed embedded schema fail at package initialization.
var compiled = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	s, err := CompileSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Schema returns a copy of the ICP JSON schema document.
func Schema() json.RawMessage {
	return append(json.RawMessage(nil), schemaJSON...)
}

// CompactSchema returns the schema without insignificant whitespace, suitable
// for embedding in a prompt.
func CompactSchema() (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, schemaJSON); err != nil {
		return "", fmt.Errorf("icp: compact schema: %w", err)
	}
	return buf.String(), nil
}

// CompileSchema checks that the embedded schema is a well-formed JSON schema.
// Model output is never validated against it.
func CompileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("icp: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("icp: compile schema: %w", err)
	}
	return compiled, nil
}
