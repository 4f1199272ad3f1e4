package adkcrew

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/adk/agent"
	adkrunner "google.golang.org/adk/runner"
	"google.golang.org/adk/session"
)

const (
	defaultAppName = "rolecall"
	crewUserID     = "rolecall-crew"
)

// crewSession owns the in-memory session store of one crew invocation.
type crewSession struct {
	app   string
	store session.Service
}

func newCrewSession(app string) *crewSession {
	if app == "" {
		app = defaultAppName
	}
	return &crewSession{app: app, store: session.InMemoryService()}
}

// drive runs root to completion under runID, seeding the session state, and
// returns the number of events the runner emitted.
func (s *crewSession) drive(ctx context.Context, root agent.Agent, runID string, state map[string]any) (int, error) {
	if root == nil {
		return 0, fmt.Errorf("root agent is required")
	}

	r, err := adkrunner.New(adkrunner.Config{
		AppName:        s.app,
		Agent:          root,
		SessionService: s.store,
	})
	if err != nil {
		return 0, fmt.Errorf("create ADK runner: %w", err)
	}

	created, err := s.store.Create(ctx, &session.CreateRequest{
		AppName:   s.app,
		UserID:    crewUserID,
		SessionID: runID,
		State:     state,
	})
	if err != nil {
		return 0, fmt.Errorf("create ADK session: %w", err)
	}
	sid := created.Session.ID()

	events := 0
	for ev, runErr := range r.Run(ctx, crewUserID, sid, nil, agent.RunConfig{}) {
		if runErr != nil {
			return events, runErr
		}
		if ev == nil {
			continue
		}
		events++
		log.Debug().Str("session", sid).Str("author", ev.Author).Msg("adkcrew: event")
	}
	return events, nil
}

// close drops the session so a reused run id starts clean.
func (s *crewSession) close(ctx context.Context, runID string) {
	if runID == "" {
		return
	}
	err := s.store.Delete(ctx, &session.DeleteRequest{AppName: s.app, UserID: crewUserID, SessionID: runID})
	if err != nil {
		log.Debug().Err(err).Str("session", runID).Msg("adkcrew: drop session")
	}
}
