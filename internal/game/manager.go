package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/salvador2999/missions/internal/mission"
	"github.com/salvador2999/missions/internal/policy"
)

type session struct {
	mu       sync.Mutex
	machine  *mission.Machine
	attempts map[string]*Attempt
	// gen changes on reset so that an evaluation finishing afterwards is
	// discarded instead of landing in the fresh state.
	gen      int
	lastSeen time.Time
}

func (s *session) evaluating() bool {
	for _, a := range s.attempts {
		if a.Evaluating {
			return true
		}
	}
	return false
}

func (s *session) view() View {
	v := View{State: s.machine.State(), Attempts: make(map[string]Attempt, len(s.attempts))}
	for id, a := range s.attempts {
		v.Attempts[id] = *a
	}
	return v
}

// Manager owns every live session. Sessions are loaded lazily from the
// ProgressStore and evicted after a period of inactivity.
type Manager struct {
	catalog   *mission.Catalog
	store     ProgressStore
	evaluator Evaluator
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(c *mission.Catalog, store ProgressStore, ev Evaluator, n Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		catalog:   c,
		store:     store,
		evaluator: ev,
		notifier:  n,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

func (m *Manager) Catalog() *mission.Catalog { return m.catalog }

func (m *Manager) session(ctx context.Context, id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s, nil
	}

	machine := mission.New(m.catalog)
	p, found, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	if found {
		restored, err := mission.Restore(m.catalog, p)
		if err != nil {
			m.logger.Warn("discarding unusable progress", "session", id, "error", err)
		} else {
			machine = restored
		}
	}

	s := &session{machine: machine, attempts: make(map[string]*Attempt), lastSeen: m.now()}
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) save(ctx context.Context, id string, s *session) {
	if err := m.store.Save(ctx, id, s.machine.Snapshot()); err != nil {
		m.logger.Error("saving progress", "session", id, "error", err)
	}
}

func (m *Manager) notify(id string, ev Event) {
	if m.notifier != nil {
		m.notifier.Notify(id, ev)
	}
}

// State returns the current view of a session.
func (m *Manager) State(ctx context.Context, sessionID string) (View, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Apply runs a state-machine command and persists the result.
func (m *Manager) Apply(ctx context.Context, sessionID string, cmd mission.Command) (View, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Apply(cmd); err != nil {
		return View{}, err
	}
	if _, ok := cmd.(mission.Reset); ok {
		s.attempts = make(map[string]*Attempt)
		s.gen++
		m.notify(sessionID, Event{Type: EventProgressReset})
	}
	m.save(ctx, sessionID, s)
	return s.view(), nil
}

// Evaluate submits the participant's text for scenarioID and records the
// outcome as the scenario's attempt. Only one evaluation may run per session
// at a time. Evaluator failures are not errors: they are part of the attempt.
func (m *Manager) Evaluate(ctx context.Context, sessionID, identity, scenarioID, response string) (Attempt, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return Attempt{}, err
	}

	s.mu.Lock()
	sc, ok := s.machine.Scenario(scenarioID)
	switch {
	case !ok:
		s.mu.Unlock()
		return Attempt{}, fmt.Errorf("%w: %q", mission.ErrUnknownScenario, scenarioID)
	case sc.Status == mission.StatusLocked:
		s.mu.Unlock()
		return Attempt{}, mission.ErrScenarioLocked
	case sc.Status == mission.StatusCompleted:
		s.mu.Unlock()
		return Attempt{}, mission.ErrScenarioCompleted
	case strings.TrimSpace(response) == "":
		s.mu.Unlock()
		return Attempt{}, mission.ErrEmptyResponse
	case s.evaluating():
		s.mu.Unlock()
		return Attempt{}, ErrEvaluationPending
	}
	if err := s.machine.Apply(mission.SaveDraft{ID: scenarioID, Text: response}); err != nil {
		s.mu.Unlock()
		return Attempt{}, err
	}
	m.save(ctx, sessionID, s)
	s.attempts[scenarioID] = &Attempt{ScenarioID: scenarioID, Response: response, Evaluating: true}
	gen := s.gen
	s.mu.Unlock()

	m.notify(sessionID, Event{Type: EventEvaluationStarted, Data: map[string]string{"scenarioId": scenarioID}})

	// The participant may leave; the evaluation still runs to completion.
	out := m.evaluator.Evaluate(context.WithoutCancel(ctx), identity, sc, response)

	a := Attempt{ScenarioID: scenarioID, Response: response}
	if out.Success {
		a.Evaluated = true
		a.Feedback = out.Feedback
		a.Score = out.Score
		a.Elements = out.Elements
		a.Guidance = policy.Validate(outcome(a)).Message()
	} else {
		a.ErrorKind = string(out.Kind)
		a.ErrorMessage = out.Message
	}

	s.mu.Lock()
	if s.gen == gen {
		s.attempts[scenarioID] = &a
	}
	s.mu.Unlock()

	m.notify(sessionID, Event{Type: EventEvaluationFinished, Data: a})
	return a, nil
}

func outcome(a Attempt) policy.Outcome {
	return policy.Outcome{
		Evaluated: a.Evaluated,
		Response:  a.Response,
		Score:     a.Score,
		Elements:  a.Elements,
	}
}

// Submit advances past scenarioID when its latest evaluation passes the
// gate. The evaluated text must still be the saved draft.
func (m *Manager) Submit(ctx context.Context, sessionID, scenarioID string) (View, error) {
	s, err := m.session(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.machine.Scenario(scenarioID)
	if !ok {
		return View{}, fmt.Errorf("%w: %q", mission.ErrUnknownScenario, scenarioID)
	}
	if sc.Status == mission.StatusCompleted {
		return View{}, mission.ErrScenarioCompleted
	}

	a, ok := s.attempts[scenarioID]
	if ok && a.Evaluating {
		return View{}, ErrEvaluationPending
	}
	if !ok || a.Response != s.machine.Response(scenarioID) {
		return View{}, ErrNotEvaluated
	}
	v := policy.Validate(outcome(*a))
	switch {
	case !v.Valid:
		return View{}, ErrNotEvaluated
	case !v.CanAdvance:
		return View{}, ErrBelowThreshold
	}

	if err := s.machine.Apply(mission.CompleteScenario{ID: scenarioID, Response: a.Response, Score: a.Score}); err != nil {
		return View{}, err
	}
	delete(s.attempts, scenarioID)
	m.save(ctx, sessionID, s)

	m.notify(sessionID, Event{Type: EventScenarioCompleted, Data: map[string]any{
		"scenarioId": scenarioID,
		"score":      *a.Score,
		"totalScore": s.machine.TotalScore(),
	}})
	return s.view(), nil
}

// Evict drops sessions idle for longer than idle. Their progress stays in
// the store; sessions with an evaluation in flight are kept.
func (m *Manager) Evict(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	n := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastSeen.Before(cutoff) && !s.evaluating()
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Evict(idle); n > 0 {
				m.logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}
