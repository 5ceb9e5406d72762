package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed mapping.cue
var mappingSchemaSource string

// ValidateMappingYAML checks mapping config YAML against the embedded CUE
// definition #MappingConfig. All violations are reported in one error.
func ValidateMappingYAML(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse mapping config: %w", err)
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return fmt.Errorf("invalid mapping config: top level must be a mapping")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(mappingSchemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("invalid mapping schema: %v", err)
	}

	def := schema.LookupPath(cue.ParsePath("#MappingConfig"))
	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("invalid mapping config: %v", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid mapping config: %s", cueerrors.Details(err, nil))
	}
	return nil
}
