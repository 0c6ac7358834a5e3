package profiles

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hearthweave/geocass/internal/common"
)

//go:embed schemas/sync_request.v1.json
var syncRequestSchema string

const syncRequestSchemaID = "https://geocass.hearthweave.org/schemas/sync_request.v1.json"

// Validator checks raw sync bodies against the embedded JSON Schema before
// they are decoded.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schema, err := jsonschema.CompileString(syncRequestSchemaID, syncRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile sync schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate performs hard reject: any mismatch is common.ErrInvalidInput.
func (v *Validator) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", common.ErrInvalidInput, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}
