package server

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/helpers"
	"github.com/go-go-golems/cardstream/pkg/similarity"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

const (
	SimilarityToolName        = "SMILES Similarity Search"
	SimilarityToolDescription = "Finds the molecules of the reference dataset that are most similar to a SMILES string"
)

type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args json.RawMessage) (*extract.ToolInvocation, error)
}

type SimilarityArgs struct {
	Query string `json:"query" jsonschema:"description=SMILES string to compare against the dataset,minLength=1"`
	K     int    `json:"k,omitempty" jsonschema:"description=Number of molecules to return,minimum=1,maximum=50"`
}

type SimilarityTool struct {
	index    *similarity.Index
	defaultK int
}

func NewSimilarityTool(index *similarity.Index, defaultK int) *SimilarityTool {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &SimilarityTool{index: index, defaultK: defaultK}
}

func (t *SimilarityTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        SimilarityToolName,
		Description: SimilarityToolDescription,
		Parameters:  helpers.ReflectSchema(&SimilarityArgs{}),
	}
}

// Call validates the arguments and runs the search. Search failures are
// reported inside the invocation with an error status.
func (t *SimilarityTool) Call(ctx context.Context, args json.RawMessage) (*extract.ToolInvocation, error) {
	def := t.Definition()
	if err := helpers.ValidateJSON(def.Parameters, args); err != nil {
		return nil, errors.Wrap(err, "invalid similarity search arguments")
	}

	var a SimilarityArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, errors.Wrap(err, "could not decode similarity search arguments")
	}
	if a.K == 0 {
		a.K = t.defaultK
	}

	ret := &extract.ToolInvocation{
		Details: &extract.ToolDetails{Name: def.Name, Description: def.Description},
	}

	results, err := t.index.Search(ctx, a.Query, a.K)
	if err != nil {
		ret.Result = &extract.ToolResult{Status: "error", Message: err.Error()}
		return ret, nil
	}

	b, err := json.Marshal(results)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode search results")
	}
	ret.Result = &extract.ToolResult{Status: extract.StatusSuccess, Results: b}
	return ret, nil
}

var (
	smilesChars   = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#$/\\%.*]+$`)
	smilesSpecial = regexp.MustCompile(`[\[\]()=#@*]`)
	organicAtoms  = regexp.MustCompile(`^[BCNOPSFI]{3,}$`)
	ringClosure   = regexp.MustCompile(`^[BCNOPSFIlrbcnops]+[0-9][BCNOPSFIlrbcnops0-9]*$`)

	similarityWords = []string{"similar", "smiles", "molecule", "compound", "analog", "resembl"}
)

func looksLikeSMILES(w string) bool {
	if !smilesChars.MatchString(w) {
		return false
	}
	if organicAtoms.MatchString(w) || ringClosure.MatchString(w) {
		return true
	}
	return smilesSpecial.MatchString(w) && strings.ContainsAny(w[:1], "BCNOPSFIbcnops*[")
}

// MoleculeIn returns the first word of the query that reads as a SMILES
// string.
func MoleculeIn(query string) (string, bool) {
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, ",;:!?\"'")
		w = strings.TrimSuffix(w, ".")
		if w != "" && looksLikeSMILES(w) {
			return w, true
		}
	}
	return "", false
}

// RouteTool decides whether a query asks for a similarity search and with
// which arguments.
func RouteTool(query string) (SimilarityArgs, bool) {
	if m, ok := MoleculeIn(query); ok {
		return SimilarityArgs{Query: m}, true
	}
	lower := strings.ToLower(query)
	for _, w := range similarityWords {
		if strings.Contains(lower, w) {
			return SimilarityArgs{Query: strings.TrimSpace(query)}, true
		}
	}
	return SimilarityArgs{}, false
}
