package extract

import (
	"encoding/json"

	"github.com/go-go-golems/cardstream/pkg/markers"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

const StatusSuccess = "success"

type ToolDetails struct {
	Name        string `json:"name" jsonschema:"description=Name of the tool that produced the results"`
	Description string `json:"description,omitempty"`
}

type ToolResult struct {
	Status  string  `json:"status" jsonschema:"description=success or a failure status"`
	Message string  `json:"message,omitempty"`
	Results Results `json:"results,omitempty"`
}

// UnmarshalJSON accepts any JSON value. Only the fields of an object are
// read, and a name that is not a string is dropped.
func (d *ToolDetails) UnmarshalJSON(b []byte) error {
	*d = ToolDetails{}
	v := gjson.ParseBytes(b)
	if !v.IsObject() {
		return nil
	}
	d.Name = stringField(v, "name")
	d.Description = stringField(v, "description")
	return nil
}

// UnmarshalJSON accepts any JSON value. A result that is not an object has
// no status and therefore never succeeds.
func (r *ToolResult) UnmarshalJSON(b []byte) error {
	*r = ToolResult{}
	v := gjson.ParseBytes(b)
	if !v.IsObject() {
		return nil
	}
	r.Status = stringField(v, "status")
	r.Message = stringField(v, "message")
	if results := v.Get("results"); results.Exists() {
		r.Results = Results(results.Raw)
	}
	return nil
}

func stringField(v gjson.Result, key string) string {
	f := v.Get(key)
	if f.Type != gjson.String {
		return ""
	}
	return f.Str
}

type ToolInvocation struct {
	Details *ToolDetails `json:"details,omitempty"`
	Result  *ToolResult  `json:"result,omitempty"`
}

// Results holds the undecoded results field. Its shape is only known once
// the status says the call succeeded.
type Results json.RawMessage

func (r Results) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *Results) UnmarshalJSON(b []byte) error {
	*r = append((*r)[0:0], b...)
	return nil
}

func (Results) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "A single result record or a list of result records",
	}
}

// ResultRecord is one item of domain content, displayed as one card.
type ResultRecord map[string]interface{}

// ToolInvocationFrom decodes the tool invocation embedded in raw. The second
// return value is false while the payload is incomplete or not valid JSON.
func ToolInvocationFrom(raw string) (*ToolInvocation, bool) {
	return decodeSpan(toolSpan(raw))
}

func toolSpan(raw string) string {
	ex := markers.Scan(raw, toolTag, toolTag)
	if ex.State != markers.Closed {
		return raw
	}
	return ex.Content
}

func decodeSpan(span string) (*ToolInvocation, bool) {
	if !gjson.Valid(span) {
		return nil, false
	}
	var ret ToolInvocation
	if err := json.Unmarshal([]byte(span), &ret); err != nil {
		return nil, false
	}
	return &ret, true
}

// Name returns details.name, or "" when the payload carries no details.
func (t *ToolInvocation) Name() string {
	if t == nil || t.Details == nil {
		return ""
	}
	return t.Details.Name
}

func (t *ToolInvocation) Succeeded() bool {
	return t != nil && t.Result != nil && t.Result.Status == StatusSuccess
}

// Batch returns the result records to display. Anything but a successful
// result with an object or a list of results is an empty batch.
func (t *ToolInvocation) Batch() []ResultRecord {
	if !t.Succeeded() || len(t.Result.Results) == 0 {
		return []ResultRecord{}
	}

	res := gjson.ParseBytes(t.Result.Results)
	switch {
	case res.IsArray():
		ret := []ResultRecord{}
		res.ForEach(func(_, value gjson.Result) bool {
			ret = append(ret, toRecord(value))
			return true
		})
		return ret
	case res.IsObject():
		return []ResultRecord{toRecord(res)}
	default:
		return []ResultRecord{}
	}
}

func toRecord(value gjson.Result) ResultRecord {
	if m, ok := value.Value().(map[string]interface{}); ok {
		return m
	}
	return ResultRecord{"value": value.Value()}
}

// Schema describes the tool invocation wire format.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return r.Reflect(&ToolInvocation{})
}
