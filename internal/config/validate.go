package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// ValidateDocument validates a decoded agents document against the JSON schema.
func ValidateDocument(doc map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ParseError{Msg: "validate document schema", Err: err}
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)

	return &ValidationError{Msg: "schema validation failed: " + strings.Join(errs, "; ")}
}

func validate(cfg *Configuration) error {
	owners := make(map[string]string, cfg.TaskCount())
	for _, role := range cfg.Roles {
		if role.Key == "" {
			return &ValidationError{Field: "roles", Msg: "role key must not be empty"}
		}
		for _, task := range role.Tasks {
			field := fmt.Sprintf("roles.%s.tasks.%s", role.Key, task.Key)
			if task.Key == "" {
				return &ValidationError{Field: field, Msg: "task key must not be empty"}
			}
			if strings.TrimSpace(task.Description) == "" {
				return &ValidationError{Field: field + ".description", Msg: "is required"}
			}
			if owner, dup := owners[task.Key]; dup {
				return &ValidationError{Field: field, Msg: fmt.Sprintf("task key %q already defined by role %q", task.Key, owner)}
			}
			owners[task.Key] = role.Key
		}
	}

	for _, role := range cfg.Roles {
		for _, task := range role.Tasks {
			for _, dep := range task.Context {
				if _, ok := owners[dep]; !ok {
					return &ValidationError{
						Field: fmt.Sprintf("roles.%s.tasks.%s.context", role.Key, task.Key),
						Msg:   fmt.Sprintf("unknown task %q", dep),
					}
				}
			}
		}
	}
	return nil
}
