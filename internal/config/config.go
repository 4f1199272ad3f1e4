// Package config loads and validates agents documents.
package config

import "time"

// DefaultFileName is the conventional document name looked up in the working directory.
const DefaultFileName = "agents.yaml"

// Configuration is a normalized agents document.
type Configuration struct {
	Framework string
	Topic     string
	Process   string
	Memory    bool
	// Roles keeps document order; it is the default execution order.
	Roles []*RoleSpec
}

// RoleSpec describes one agent persona.
type RoleSpec struct {
	Key             string
	Role            string
	Goal            string
	Backstory       string
	LLM             string
	BaseURL         string
	AllowDelegation bool
	Tools           []string
	Tasks           []*TaskSpec
}

// TaskSpec describes one unit of work owned by a role.
type TaskSpec struct {
	Key            string
	Name           string
	Description    string
	ExpectedOutput string
	Context        []string
	// Tools overrides the role tools when non-nil.
	Tools   []string
	Timeout time.Duration
}

// TaskCount returns the number of tasks across all roles.
func (c *Configuration) TaskCount() int {
	n := 0
	for _, r := range c.Roles {
		n += len(r.Tasks)
	}
	return n
}

// RoleKeys returns role keys in document order.
func (c *Configuration) RoleKeys() []string {
	keys := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		keys = append(keys, r.Key)
	}
	return keys
}
