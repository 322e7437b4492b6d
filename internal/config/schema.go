package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://github.com/maruel/filekv/settings.schema.json"

// Schema returns the JSON schema describing the settings file.
func Schema() *jsonschema.Schema {
	// Every field is optional; defaults fill the gaps.
	r := &jsonschema.Reflector{Anonymous: true, DoNotReference: true, RequiredFromJSONSchemaTags: true}
	s := r.Reflect(&Settings{})
	s.Title = "filekv settings"
	return s
}

var compiled = sync.OnceValues(func() (*validator.Schema, error) {
	b, err := json.Marshal(Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	c := validator.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	return c.Compile(schemaURL)
})

// validateDocument checks a decoded settings document against Schema. The
// document is normalized through JSON first so YAML decoded values are
// accepted.
func validateDocument(doc any) error {
	sch, err := compiled()
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("invalid settings document: %w", err)
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("invalid settings document: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("settings do not match schema: %w", err)
	}
	return nil
}
