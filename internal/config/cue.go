package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE []byte

// SchemaError is a config document rejected by the embedded CUE schema.
type SchemaError struct {
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// validateCUE unifies the YAML document with #Document from the embedded
// schema. Violations come back as SchemaErrors positioned inside the YAML
// source, not the schema.
func validateCUE(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Document"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("embedded schema has no #Document: %w", err)
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return positionedError(err)
	}
	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return positionedError(err)
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return positionedError(err)
	}
	return nil
}

// positionedError extracts position info from CUE errors, keeping the first
// error that carries one.
func positionedError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &SchemaError{Message: first.Error(), Pos: positions[0]}
	}
	return err
}
