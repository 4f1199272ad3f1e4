// Package graph turns a Configuration into runtime agents and tasks.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/modelcfg"
)

// Agent is the runtime form of a role.
type Agent struct {
	Index int
	Key   string
	Spec  *config.RoleSpec
	Model modelcfg.ModelConfig
	Tasks []*Task
}

// AllowsDelegation reports whether the agent may coordinate other agents.
func (a *Agent) AllowsDelegation() bool {
	return a.Spec.AllowDelegation
}

// Instructions is the persona text handed to providers.
func (a *Agent) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", a.Spec.Role)
	if goal := strings.TrimSpace(a.Spec.Goal); goal != "" {
		fmt.Fprintf(&b, "\nGoal: %s", goal)
	}
	if backstory := strings.TrimSpace(a.Spec.Backstory); backstory != "" {
		fmt.Fprintf(&b, "\nBackstory: %s", backstory)
	}
	return b.String()
}

// Task is the runtime form of a task. Its result slot is written once.
type Task struct {
	Index int
	Key   string
	Spec  *config.TaskSpec
	Agent *Agent

	deps  []int
	graph *Graph

	mu     sync.Mutex
	result string
	set    bool
}

// Dependencies returns the tasks named in context, in declared order.
func (t *Task) Dependencies() []*Task {
	out := make([]*Task, 0, len(t.deps))
	for _, i := range t.deps {
		out = append(out, t.graph.Tasks[i])
	}
	return out
}

// Tools returns the task override, or the agent tools.
func (t *Task) Tools() []string {
	if t.Spec.Tools != nil {
		return t.Spec.Tools
	}
	return t.Agent.Spec.Tools
}

// SetResult stores the output. A second call fails with ErrResultAlreadySet.
func (t *Task) SetResult(output string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set {
		return fmt.Errorf("set result of %q: %w", t.Key, ErrResultAlreadySet)
	}
	t.result = output
	t.set = true
	return nil
}

// Result returns the output and whether it was set.
func (t *Task) Result() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.set
}

// ContextText concatenates the results of the dependencies.
// Dependencies without a result are left out.
func (t *Task) ContextText() string {
	var parts []string
	for _, dep := range t.Dependencies() {
		out, ok := dep.Result()
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", dep.Key, strings.TrimSpace(out)))
	}
	return strings.Join(parts, "\n\n")
}

// Prompt is the task text handed to providers.
func (t *Task) Prompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Spec.Description))
	if exp := strings.TrimSpace(t.Spec.ExpectedOutput); exp != "" {
		fmt.Fprintf(&b, "\n\nExpected output: %s", exp)
	}
	return b.String()
}

// Graph is an arena of agents and tasks. Tasks are indexed in document order.
type Graph struct {
	Topic  string
	Agents []*Agent
	Tasks  []*Task

	byKey      map[string]int
	dependents [][]int
	order      []int
}

// Build creates one Agent per role and one Task per task and orders the tasks.
// models is keyed by role key; every role needs an entry.
func Build(cfg *config.Configuration, models map[string]modelcfg.ModelConfig) (*Graph, error) {
	g := &Graph{
		Topic: cfg.Topic,
		byKey: make(map[string]int, cfg.TaskCount()),
	}

	seenRoles := make(map[string]bool, len(cfg.Roles))
	for _, spec := range cfg.Roles {
		if seenRoles[spec.Key] {
			return nil, &config.ValidationError{Field: "roles." + spec.Key, Msg: "duplicate role key"}
		}
		seenRoles[spec.Key] = true
		if len(spec.Tasks) == 0 {
			return nil, &config.ValidationError{Field: "roles." + spec.Key + ".tasks", Msg: "role must declare at least one task"}
		}
		model, ok := models[spec.Key]
		if !ok {
			return nil, &config.ValidationError{Field: "roles." + spec.Key, Msg: "no model config resolved"}
		}

		agent := &Agent{Index: len(g.Agents), Key: spec.Key, Spec: spec, Model: model}
		for _, ts := range spec.Tasks {
			if _, dup := g.byKey[ts.Key]; dup {
				return nil, &config.ValidationError{
					Field: fmt.Sprintf("roles.%s.tasks.%s", spec.Key, ts.Key),
					Msg:   "duplicate task key",
				}
			}
			task := &Task{Index: len(g.Tasks), Key: ts.Key, Spec: ts, Agent: agent, graph: g}
			g.byKey[ts.Key] = task.Index
			g.Tasks = append(g.Tasks, task)
			agent.Tasks = append(agent.Tasks, task)
		}
		g.Agents = append(g.Agents, agent)
	}

	g.dependents = make([][]int, len(g.Tasks))
	for _, task := range g.Tasks {
		for _, key := range task.Spec.Context {
			dep, ok := g.byKey[key]
			if !ok {
				return nil, &config.ValidationError{
					Field: fmt.Sprintf("roles.%s.tasks.%s.context", task.Agent.Key, task.Key),
					Msg:   fmt.Sprintf("unknown task %q", key),
				}
			}
			if slices.Contains(task.deps, dep) {
				continue
			}
			task.deps = append(task.deps, dep)
			g.dependents[dep] = append(g.dependents[dep], task.Index)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort is Kahn's algorithm picking the lowest ready index first.
func (g *Graph) topoSort() ([]int, error) {
	indegree := make([]int, len(g.Tasks))
	for _, task := range g.Tasks {
		indegree[task.Index] = len(task.deps)
	}

	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.Tasks))
	for len(ready) > 0 {
		slices.Sort(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range g.dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(g.Tasks) {
		return nil, &CyclicDependencyError{Cycle: g.findCycle(indegree)}
	}
	return order, nil
}

// findCycle walks dependencies among unresolved tasks until a task repeats.
func (g *Graph) findCycle(indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := map[int]int{}
	var path []int
	cur := start
	for {
		if at, ok := pos[cur]; ok {
			cycle := make([]string, 0, len(path)-at+1)
			for _, i := range path[at:] {
				cycle = append(cycle, g.Tasks[i].Key)
			}
			// Reverse so the cycle reads in execution direction.
			slices.Reverse(cycle)
			return append(cycle, cycle[0])
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := -1
		for _, dep := range g.Tasks[cur].deps {
			if indegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next < 0 {
			return nil
		}
		cur = next
	}
}

// Order returns tasks in execution order.
func (g *Graph) Order() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, i := range g.order {
		out = append(out, g.Tasks[i])
	}
	return out
}

// Task returns the task with the given key.
func (g *Graph) Task(key string) (*Task, bool) {
	i, ok := g.byKey[key]
	if !ok {
		return nil, false
	}
	return g.Tasks[i], true
}

// Agent returns the agent with the given role key.
func (g *Graph) Agent(key string) (*Agent, bool) {
	for _, a := range g.Agents {
		if a.Key == key {
			return a, true
		}
	}
	return nil, false
}

// Dependents returns tasks that list t in their context, in document order.
func (g *Graph) Dependents(t *Task) []*Task {
	out := make([]*Task, 0, len(g.dependents[t.Index]))
	for _, i := range g.dependents[t.Index] {
		out = append(out, g.Tasks[i])
	}
	return out
}

// TransitiveDependents counts the tasks that directly or indirectly depend on t.
func (g *Graph) TransitiveDependents(t *Task) int {
	seen := make([]bool, len(g.Tasks))
	stack := slices.Clone(g.dependents[t.Index])
	count := 0
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		count++
		stack = append(stack, g.dependents[i]...)
	}
	return count
}

// Manager returns the coordinating agent for hierarchical runs:
// the first agent allowed to delegate, else the first agent.
func (g *Graph) Manager() *Agent {
	for _, a := range g.Agents {
		if a.AllowsDelegation() {
			return a
		}
	}
	if len(g.Agents) == 0 {
		return nil
	}
	return g.Agents[0]
}
