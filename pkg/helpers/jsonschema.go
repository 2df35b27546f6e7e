package helpers

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ReflectSchema reflects v without $ref indirections, which is the form LLM
// tool definitions expect.
func ReflectSchema(v interface{}) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return r.Reflect(v)
}

// ValidateJSON checks doc against schema and joins all violations into one
// error.
func ValidateJSON(schema *jsonschema.Schema, doc []byte) error {
	// gojsonschema only knows drafts up to 7
	s := *schema
	s.Version = ""
	schemaBytes, err := json.Marshal(&s)
	if err != nil {
		return errors.Wrap(err, "could not marshal schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.Wrap(err, "could not validate document")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Errorf("document does not match schema: %s", strings.Join(msgs, "; "))
}
