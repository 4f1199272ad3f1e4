package adkcrew

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/session"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/report"
)

const (
	stateTopic       = "topic"
	stateCurrentTask = "current_task"
	stateStatusKey   = "status:"
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// crew maps a task graph onto ADK agents: one member per role and a
// coordinator that hands tasks to members through session state.
type crew struct {
	graph   *graph.Graph
	exec    *backend.Execution
	manager *graph.Agent

	members map[string]agent.Agent

	mu       sync.Mutex
	outcomes map[string]report.Record
}

func newCrew(g *graph.Graph, exec *backend.Execution) (*crew, error) {
	c := &crew{
		graph:    g,
		exec:     exec,
		manager:  g.Manager(),
		members:  make(map[string]agent.Agent, len(g.Agents)),
		outcomes: make(map[string]report.Record, len(g.Tasks)),
	}
	for _, ga := range g.Agents {
		member, err := c.newMember(ga)
		if err != nil {
			return nil, fmt.Errorf("create member %q: %w", ga.Key, err)
		}
		c.members[ga.Key] = member
	}
	return c, nil
}

func memberName(ga *graph.Agent) string {
	return fmt.Sprintf("member_%d_%s", ga.Index, invalidNameChars.ReplaceAllString(ga.Key, "_"))
}

func (c *crew) newMember(ga *graph.Agent) (agent.Agent, error) {
	return agent.New(agent.Config{
		Name:        memberName(ga),
		Description: ga.Spec.Role,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {
				value, err := ctx.Session().State().Get(stateCurrentTask)
				if err != nil {
					if errors.Is(err, session.ErrStateKeyNotExist) {
						err = fmt.Errorf("no current task in session state")
					}
					yield(nil, err)
					return
				}
				key, _ := value.(string)
				t, ok := c.graph.Task(key)
				if !ok {
					yield(nil, fmt.Errorf("unknown task %q in session state", key))
					return
				}

				log.Debug().Str("task", key).Str("member", ga.Key).Msg("adkcrew: member working")
				rec := c.exec.Attempt(ctx, t, ga)
				c.setOutcome(rec)

				if err := ctx.Session().State().Set(stateStatusKey+key, string(rec.Status)); err != nil {
					yield(nil, fmt.Errorf("set task status in session state: %w", err))
					return
				}
			}
		},
	})
}

func (c *crew) setOutcome(rec report.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[rec.TaskKey] = rec
}

func (c *crew) takeOutcome(key string) (report.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.outcomes[key]
	delete(c.outcomes, key)
	return rec, ok
}

// rootAgent builds the coordinator owning all members.
func (c *crew) rootAgent() (agent.Agent, error) {
	subAgents := make([]agent.Agent, 0, len(c.graph.Agents))
	for _, ga := range c.graph.Agents {
		subAgents = append(subAgents, c.members[ga.Key])
	}
	return agent.New(agent.Config{
		Name:        "crew",
		Description: "Hands each task to the member owning it.",
		SubAgents:   subAgents,
		Run:         c.run,
	})
}

// next returns the task to hand out. Sequential runs follow the graph order;
// hierarchical runs let the manager prefer the ready task most others wait on.
func (c *crew) next() *graph.Task {
	pending := c.exec.Pending()
	if len(pending) == 0 {
		return nil
	}
	if c.exec.Mode() != backend.ModeHierarchical {
		return pending[0]
	}

	var best *graph.Task
	bestScore := -1
	for _, t := range pending {
		if !c.exec.Ready(t) {
			continue
		}
		if score := c.graph.TransitiveDependents(t); score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}

func (c *crew) run(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		for t := c.next(); t != nil; t = c.next() {
			if ctx.Ended() {
				return
			}
			if err := ctx.Err(); err != nil {
				log.Info().Str("task", t.Key).Msg("adkcrew: run cancelled")
				c.exec.CancelRemaining(ctx, err)
				return
			}
			if dep, blocked := c.exec.Blocked(t); blocked {
				c.exec.Commit(ctx, c.exec.Skip(t, dep))
				continue
			}

			rec, ok := c.delegate(ctx, t, t.Agent, yield)
			if !ok {
				return
			}
			if rec.Status == report.StatusError && c.exec.Mode() == backend.ModeHierarchical &&
				c.manager != t.Agent && c.manager.AllowsDelegation() {
				log.Info().Str("task", t.Key).Str("manager", c.manager.Key).Msg("adkcrew: manager takes over failed task")
				retry, ok := c.delegate(ctx, t, c.manager, yield)
				if !ok {
					return
				}
				if retry.Status == report.StatusCompleted {
					rec = retry
				}
			}
			c.exec.Commit(ctx, rec)
		}
	}
}

// delegate runs the member of ga on t. ok is false when the caller must stop.
func (c *crew) delegate(ctx agent.InvocationContext, t *graph.Task, ga *graph.Agent, yield func(*session.Event, error) bool) (report.Record, bool) {
	if err := ctx.Session().State().Set(stateCurrentTask, t.Key); err != nil {
		yield(nil, fmt.Errorf("set current task in session state: %w", err))
		return report.Record{}, false
	}
	for ev, err := range c.members[ga.Key].Run(ctx) {
		if !yield(ev, err) {
			return report.Record{}, false
		}
		if err != nil {
			return report.Record{}, false
		}
	}
	rec, ok := c.takeOutcome(t.Key)
	if !ok {
		yield(nil, fmt.Errorf("member %q produced no outcome for task %q", ga.Key, t.Key))
		return report.Record{}, false
	}
	return rec, true
}
