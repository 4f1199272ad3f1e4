package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type documentFields struct {
	Framework string `yaml:"framework"`
	Topic     string `yaml:"topic"`
	Process   string `yaml:"process"`
	Memory    bool   `yaml:"memory"`
}

type roleFields struct {
	Role            string   `yaml:"role"`
	Goal            string   `yaml:"goal"`
	Backstory       string   `yaml:"backstory"`
	LLM             string   `yaml:"llm"`
	BaseURL         string   `yaml:"base_url"`
	AllowDelegation bool     `yaml:"allow_delegation"`
	Tools           []string `yaml:"tools"`
}

type taskFields struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Context        []string `yaml:"context"`
	Tools          []string `yaml:"tools"`
	Timeout        string   `yaml:"timeout"`
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Configuration, error) {
	return parseBytes(data, "inline")
}

func parseBytes(data []byte, source string) (*Configuration, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Source: source, Msg: "decode yaml", Err: err}
	}
	return parseNode(&root, source)
}

// ParseNode decodes an already parsed YAML node, keeping its key order.
func ParseNode(node *yaml.Node) (*Configuration, error) {
	if node == nil {
		return nil, &ParseError{Source: "node", Msg: "document is empty"}
	}
	return parseNode(node, "node")
}

func parseNode(root *yaml.Node, source string) (*Configuration, error) {
	doc := root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil, &ParseError{Source: source, Msg: "document is empty"}
		}
		doc = doc.Content[0]
	}
	doc = deref(doc)
	if doc.Kind != yaml.MappingNode {
		return nil, &ParseError{Source: source, Msg: "top level must be a mapping"}
	}

	rolesNode := mappingValue(doc, "roles")
	if rolesNode != nil && !isNull(rolesNode) {
		if rolesNode.Kind != yaml.MappingNode {
			return nil, &ParseError{Source: source, Msg: "roles must be a mapping"}
		}
		for i := 0; i+1 < len(rolesNode.Content); i += 2 {
			key := rolesNode.Content[i].Value
			roleNode := deref(rolesNode.Content[i+1])
			if roleNode.Kind != yaml.MappingNode {
				return nil, &ParseError{Source: source, Msg: fmt.Sprintf("roles.%s must be a mapping", key)}
			}
			if err := checkTaskShapes(key, roleNode, source); err != nil {
				return nil, err
			}
		}
	}

	var raw map[string]any
	if err := doc.Decode(&raw); err != nil {
		return nil, &ParseError{Source: source, Msg: "decode document", Err: err}
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}

	var fields documentFields
	if err := doc.Decode(&fields); err != nil {
		return nil, &ParseError{Source: source, Msg: "decode top-level fields", Err: err}
	}

	if rolesNode == nil || rolesNode.Kind != yaml.MappingNode {
		return nil, &ValidationError{Field: "roles", Msg: "at least one role is required"}
	}

	cfg := &Configuration{
		Framework: strings.TrimSpace(fields.Framework),
		Topic:     fields.Topic,
		Process:   strings.TrimSpace(fields.Process),
		Memory:    fields.Memory,
	}

	for i := 0; i+1 < len(rolesNode.Content); i += 2 {
		role, err := parseRole(rolesNode.Content[i].Value, deref(rolesNode.Content[i+1]), source)
		if err != nil {
			return nil, err
		}
		cfg.Roles = append(cfg.Roles, role)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseRole(key string, node *yaml.Node, source string) (*RoleSpec, error) {
	var fields roleFields
	if err := node.Decode(&fields); err != nil {
		return nil, &ParseError{Source: source, Msg: fmt.Sprintf("decode roles.%s", key), Err: err}
	}

	role := &RoleSpec{
		Key:             strings.TrimSpace(key),
		Role:            strings.TrimSpace(fields.Role),
		Goal:            fields.Goal,
		Backstory:       fields.Backstory,
		LLM:             strings.TrimSpace(fields.LLM),
		BaseURL:         strings.TrimSpace(fields.BaseURL),
		AllowDelegation: fields.AllowDelegation,
		Tools:           fields.Tools,
	}
	if role.Role == "" {
		role.Role = role.Key
	}

	tasksNode := mappingValue(node, "tasks")
	if tasksNode == nil || isNull(tasksNode) || len(tasksNode.Content) == 0 {
		return nil, &ValidationError{Field: "roles." + key + ".tasks", Msg: "role must declare at least one task"}
	}
	if tasksNode.Kind != yaml.MappingNode {
		return nil, &ParseError{Source: source, Msg: fmt.Sprintf("roles.%s.tasks must be a mapping", key)}
	}

	for i := 0; i+1 < len(tasksNode.Content); i += 2 {
		taskKey := tasksNode.Content[i].Value
		taskNode := deref(tasksNode.Content[i+1])
		if taskNode.Kind != yaml.MappingNode {
			return nil, &ParseError{Source: source, Msg: fmt.Sprintf("roles.%s.tasks.%s must be a mapping", key, taskKey)}
		}
		task, err := parseTask(key, taskKey, taskNode, source)
		if err != nil {
			return nil, err
		}
		role.Tasks = append(role.Tasks, task)
	}
	return role, nil
}

func parseTask(roleKey, key string, node *yaml.Node, source string) (*TaskSpec, error) {
	field := fmt.Sprintf("roles.%s.tasks.%s", roleKey, key)

	var fields taskFields
	if err := node.Decode(&fields); err != nil {
		return nil, &ParseError{Source: source, Msg: "decode " + field, Err: err}
	}

	task := &TaskSpec{
		Key:            strings.TrimSpace(key),
		Name:           strings.TrimSpace(fields.Name),
		Description:    fields.Description,
		ExpectedOutput: fields.ExpectedOutput,
		Context:        fields.Context,
		Tools:          fields.Tools,
	}
	if task.Name == "" {
		task.Name = task.Key
	}
	if s := strings.TrimSpace(fields.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, &ValidationError{Field: field + ".timeout", Msg: err.Error()}
		}
		if d < 0 {
			return nil, &ValidationError{Field: field + ".timeout", Msg: "must not be negative"}
		}
		task.Timeout = d
	}
	return task, nil
}

func checkTaskShapes(roleKey string, roleNode *yaml.Node, source string) error {
	tasksNode := mappingValue(roleNode, "tasks")
	if tasksNode == nil || isNull(tasksNode) {
		return nil
	}
	if tasksNode.Kind != yaml.MappingNode {
		return &ParseError{Source: source, Msg: fmt.Sprintf("roles.%s.tasks must be a mapping", roleKey)}
	}
	for i := 0; i+1 < len(tasksNode.Content); i += 2 {
		if deref(tasksNode.Content[i+1]).Kind != yaml.MappingNode {
			return &ParseError{
				Source: source,
				Msg:    fmt.Sprintf("roles.%s.tasks.%s must be a mapping", roleKey, tasksNode.Content[i].Value),
			}
		}
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return deref(node.Content[i+1])
		}
	}
	return nil
}

func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
