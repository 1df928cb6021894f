package export

import (
	"bytes"
	"cmp"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/config.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// ValidationResult contains the outcome of a schema validation.
type ValidationResult struct {
	Valid  bool
	Issues []ValidationIssue
}

// ValidationIssue represents a single validation error from the schema.
type ValidationIssue struct {
	Path    string // Instance location (e.g., "/hidden_sizes/0")
	Message string // Human-readable error message
	Keyword string // Schema keyword that failed
}

// String renders the issue as "path: message".
func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// getSchema compiles the embedded JSON schema once and returns it.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("config.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// Validate checks an exported configuration blob against the embedded
// config schema. The error return is for encoding or schema compilation
// failures; validation issues are returned in the ValidationResult.
func Validate(blob map[string]any) (*ValidationResult, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	// Round-trip through JSON so numbers reach the validator as json.Number.
	jsonData, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("preparing JSON for validation: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return &ValidationResult{Valid: true}, nil
	}

	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, fmt.Errorf("unexpected validation error type: %w", err)
	}

	return &ValidationResult{
		Valid:  false,
		Issues: extractIssues(validationErr),
	}, nil
}

// containerKeywords only restate the failures of their causes.
var containerKeywords = map[string]bool{"": true, "oneOf": true, "anyOf": true, "allOf": true, "$ref": true}

// extractIssues flattens the error tree into one issue per failing
// (path, keyword, message), ordered by config key.
func extractIssues(ve *jsonschema.ValidationError) []ValidationIssue {
	var issues []ValidationIssue
	stack := []*jsonschema.ValidationError{ve}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(cur.Causes) > 0 {
			stack = append(stack, cur.Causes...)
			continue
		}
		if is, ok := leafIssue(cur); ok {
			issues = append(issues, is)
		}
	}
	if len(issues) == 0 {
		return []ValidationIssue{{Message: ve.Error()}}
	}

	slices.SortFunc(issues, func(a, b ValidationIssue) int {
		return cmp.Or(
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.Keyword, b.Keyword),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return slices.Compact(issues)
}

func leafIssue(ve *jsonschema.ValidationError) (ValidationIssue, bool) {
	if ve.ErrorKind == nil {
		return ValidationIssue{}, false
	}
	var keyword string
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
		keyword = kw[len(kw)-1]
	}
	if containerKeywords[keyword] {
		return ValidationIssue{}, false
	}
	var path string
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	return ValidationIssue{
		Path:    path,
		Message: ve.ErrorKind.LocalizedString(printer),
		Keyword: keyword,
	}, true
}
