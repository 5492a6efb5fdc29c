package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// Schema resource names.
const (
	schemaExtract = "https://tasksift.local/schemas/extract.json"
	schemaCreate  = "https://tasksift.local/schemas/todo-create.json"
	schemaUpdate  = "https://tasksift.local/schemas/todo-update.json"
)

const datePattern = `^\d{4}-\d{2}-\d{2}$`

func schemaDocuments() map[string]map[string]any {
	var categories []string
	for _, rule := range extract.CategoryRules() {
		categories = append(categories, rule.Name)
	}
	priorities := []string{extract.PriorityHigh, extract.PriorityMedium, extract.PriorityLow}

	todoProps := func() map[string]any {
		return map[string]any{
			"title":     map[string]any{"type": "string", "minLength": 1},
			"category":  map[string]any{"enum": categories},
			"priority":  map[string]any{"enum": priorities},
			"dueDate":   map[string]any{"type": []string{"string", "null"}, "pattern": datePattern},
			"completed": map[string]any{"type": "boolean"},
		}
	}

	return map[string]map[string]any{
		schemaExtract: {
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
				"mode": map[string]any{"type": "string"},
				"save": map[string]any{"type": "boolean"},
			},
		},
		schemaCreate: {
			"type":       "object",
			"required":   []string{"title"},
			"properties": todoProps(),
		},
		schemaUpdate: {
			"type":          "object",
			"minProperties": 1,
			"properties":    todoProps(),
		},
	}
}

// compileSchemas builds the request validators.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	docs := schemaDocuments()
	for name, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, strings.NewReader(string(b))); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
	}

	out := make(map[string]*jsonschema.Schema, len(docs))
	for name := range docs {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = schema
	}
	return out, nil
}

// requestError is a client error rendered as 400.
type requestError struct {
	Path    string
	Message string
}

func (e *requestError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// schemaError reduces a validation error to its first leaf cause.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &requestError{Message: err.Error()}
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	path := strings.TrimPrefix(ve.InstanceLocation, "/")
	return &requestError{Path: strings.ReplaceAll(path, "/", "."), Message: ve.Message}
}
