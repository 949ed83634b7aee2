package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salvador2999/missions/internal/client"
	"github.com/salvador2999/missions/internal/database"
	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/game"
	"github.com/salvador2999/missions/internal/migrations"
	"github.com/salvador2999/missions/internal/mission"
	"github.com/salvador2999/missions/internal/policy"
	"github.com/salvador2999/missions/internal/ratelimit"
)

const (
	passingAnswer = "Boa proposta.\n**Elementos válidos:** 4/5\n**Pontuação:** 160/200"
	weakAnswer    = "Faltam partes.\n**Elementos válidos:** 3/5\n**Pontuação:** 120/200"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedProvider struct {
	mu     sync.Mutex
	answer string
	err    error
}

func (p *fixedProvider) Name() string { return "fixed" }

func (p *fixedProvider) Evaluate(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer, p.err
}

func (p *fixedProvider) set(answer string, err error) {
	p.mu.Lock()
	p.answer, p.err = answer, err
	p.mu.Unlock()
}

type testEnv struct {
	router   *chi.Mux
	store    *DocStore
	broker   *Broker
	provider *fixedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db, database.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalog, err := mission.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	provider := &fixedProvider{answer: passingAnswer}
	svc := evaluation.NewService(evaluation.Options{
		Provider:     provider,
		Limiter:      ratelimit.New(ratelimit.NewMemoryStore(), 100, time.Hour, discard()),
		Logger:       discard(),
		MaxBodyBytes: 53000,
		MaxTextChars: 2048,
	})

	env := &testEnv{
		router:   chi.NewRouter(),
		store:    NewDocStore(db),
		broker:   NewBroker(),
		provider: provider,
	}
	games := game.NewManager(catalog, env.store, client.New(client.Local{Service: svc}), env.broker, discard())
	AddRoutes(env.router, Deps{
		Logger:        discard(),
		Evaluation:    svc,
		Games:         games,
		Broker:        env.broker,
		SessionCookie: "mission_session",
	})
	return env
}

// do sends a request as session (a Bearer token; empty for none).
func (e *testEnv) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) ok(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := e.do(t, method, path, session, body)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: expected 200, got %d: %s", method, path, w.Code, w.Body.String())
	}
	return w
}

// toMap drives a fresh session to the mission map with torin selected.
func (e *testEnv) toMap(t *testing.T, session string) {
	t.Helper()
	e.ok(t, http.MethodPost, "/api/game/character-select", session, nil)
	e.ok(t, http.MethodPost, "/api/game/character", session, SelectCharacterRequest{CharacterID: "torin"})
	e.ok(t, http.MethodPost, "/api/game/begin", session, nil)
	e.ok(t, http.MethodPost, "/api/game/map", session, nil)
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) game.View {
	t.Helper()
	var v game.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decoding error: %v", err)
	}
	return e
}

func TestStateMintsSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.ok(t, http.MethodGet, "/api/game/state", "", nil)

	id := w.Header().Get(SessionHeader)
	if uuid.Validate(id) != nil {
		t.Fatalf("session header = %q, want a uuid", id)
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "mission_session" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != id || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	v := decodeView(t, w)
	if v.Screen != mission.ScreenStart {
		t.Errorf("screen = %q, want start", v.Screen)
	}
	if len(v.Scenarios) != 6 || v.Scenarios[0].Status != mission.StatusAvailable || v.Scenarios[1].Status != mission.StatusLocked {
		t.Errorf("scenarios = %+v", v.Scenarios)
	}

	// The cookie keeps the same session on the next request.
	req := httptest.NewRequest(http.MethodGet, "/api/game/state", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get(SessionHeader); got != id {
		t.Errorf("cookie session = %q, want %q", got, id)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("known session should not set a new cookie")
	}
}

func TestInvalidSessionTokenReplaced(t *testing.T) {
	env := newTestEnv(t)

	w := env.ok(t, http.MethodGet, "/api/game/state", "not-a-uuid", nil)
	if id := w.Header().Get(SessionHeader); id == "not-a-uuid" || uuid.Validate(id) != nil {
		t.Errorf("session = %q, want a freshly minted uuid", id)
	}
}

func TestPlayThrough(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()
	env.toMap(t, s)

	catalog, _ := mission.DefaultCatalog()
	for i, sc := range catalog.Scenarios {
		env.ok(t, http.MethodPost, "/api/game/scenarios/"+sc.ID+"/select", s, nil)

		w := env.ok(t, http.MethodPost, "/api/game/scenarios/"+sc.ID+"/evaluate", s, EvaluateRequest{Response: "Criar uma rede de escolas flutuantes."})
		var a game.Attempt
		json.NewDecoder(w.Body).Decode(&a)
		if !a.Evaluated || a.Score == nil || *a.Score != 160 || a.Guidance != "" {
			t.Fatalf("scenario %d attempt = %+v", i+1, a)
		}

		v := decodeView(t, env.ok(t, http.MethodPost, "/api/game/scenarios/"+sc.ID+"/complete", s, nil))
		if v.Scenarios[i].Status != mission.StatusCompleted {
			t.Fatalf("scenario %d status = %q", i+1, v.Scenarios[i].Status)
		}
		if i+1 < len(catalog.Scenarios) {
			if v.Scenarios[i+1].Status != mission.StatusAvailable {
				t.Fatalf("scenario %d not unlocked", i+2)
			}
			if v.Screen != mission.ScreenMissionMap {
				t.Errorf("screen = %q, want missionMap", v.Screen)
			}
		}
	}

	v := decodeView(t, env.ok(t, http.MethodGet, "/api/game/state", s, nil))
	if v.Screen != mission.ScreenEnd {
		t.Errorf("screen = %q, want end", v.Screen)
	}
	if v.CompletedCount != 6 || v.TotalScore != 960 {
		t.Errorf("completed = %d, total = %d", v.CompletedCount, v.TotalScore)
	}
	if v.Character == nil || v.Character.ID != "torin" {
		t.Errorf("character = %+v", v.Character)
	}
}

func TestCompleteGate(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()
	env.toMap(t, s)
	const id = "exclusao-digital"

	w := env.do(t, http.MethodPost, "/api/game/scenarios/"+id+"/complete", s, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unevaluated: expected 422, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Kind != "not_evaluated" || e.Error != policy.MessageNotEvaluated {
		t.Errorf("unevaluated error = %+v", e)
	}

	env.provider.set(weakAnswer, nil)
	w = env.ok(t, http.MethodPost, "/api/game/scenarios/"+id+"/evaluate", s, EvaluateRequest{Response: "Fazer algo."})
	var a game.Attempt
	json.NewDecoder(w.Body).Decode(&a)
	if a.Guidance != policy.MessageBelowMinimum {
		t.Errorf("guidance = %q", a.Guidance)
	}

	w = env.do(t, http.MethodPost, "/api/game/scenarios/"+id+"/complete", s, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("weak: expected 422, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Kind != "below_threshold" || e.Error != policy.MessageBelowMinimum {
		t.Errorf("weak error = %+v", e)
	}

	// A passing re-evaluation replaces the weak attempt.
	env.provider.set(passingAnswer, nil)
	env.ok(t, http.MethodPost, "/api/game/scenarios/"+id+"/evaluate", s, EvaluateRequest{Response: "Fazer algo melhor."})

	// Editing the draft afterwards invalidates it.
	env.ok(t, http.MethodPut, "/api/game/scenarios/"+id+"/draft", s, DraftRequest{Text: "Outra ideia."})
	w = env.do(t, http.MethodPost, "/api/game/scenarios/"+id+"/complete", s, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("edited: expected 422, got %d", w.Code)
	}

	env.ok(t, http.MethodPost, "/api/game/scenarios/"+id+"/evaluate", s, EvaluateRequest{Response: "Outra ideia."})
	v := decodeView(t, env.ok(t, http.MethodPost, "/api/game/scenarios/"+id+"/complete", s, nil))
	if v.Scores[id] != 160 || v.Responses[id] != "Outra ideia." {
		t.Errorf("scores = %v, responses = %v", v.Scores, v.Responses)
	}
}

func TestGameErrors(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()

	type step struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}
	run := func(steps []step) {
		t.Helper()
		for _, st := range steps {
			w := env.do(t, st.method, st.path, s, st.body)
			if w.Code != st.status {
				t.Errorf("%s: expected %d, got %d: %s", st.name, st.status, w.Code, w.Body.String())
				continue
			}
			if e := decodeError(t, w); e.Kind != st.kind || e.Error == "" {
				t.Errorf("%s: error = %+v, want kind %q", st.name, e, st.kind)
			}
		}
	}

	run([]step{
		{"begin without character", http.MethodPost, "/api/game/begin", nil, http.StatusConflict, "no_character_selected"},
		{"unknown character", http.MethodPost, "/api/game/character", SelectCharacterRequest{CharacterID: "nobody"}, http.StatusNotFound, "unknown_character"},
		{"hide help from start", http.MethodDelete, "/api/game/help", nil, http.StatusConflict, "invalid_transition"},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/character", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+s)
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Kind != string(evaluation.KindInvalidInput) {
		t.Errorf("malformed body: got %d", w.Code)
	}

	env.toMap(t, s)

	run([]step{
		{"locked scenario", http.MethodPost, "/api/game/scenarios/violencia-abandono/select", nil, http.StatusConflict, "scenario_locked"},
		{"unknown scenario", http.MethodPost, "/api/game/scenarios/nope/select", nil, http.StatusNotFound, "unknown_scenario"},
		{"unknown draft", http.MethodPut, "/api/game/scenarios/nope/draft", DraftRequest{Text: "x"}, http.StatusNotFound, "unknown_scenario"},
		{"blank response", http.MethodPost, "/api/game/scenarios/exclusao-digital/evaluate", EvaluateRequest{Response: "   "}, http.StatusConflict, "empty_response"},
		{"evaluate locked", http.MethodPost, "/api/game/scenarios/violencia-abandono/evaluate", EvaluateRequest{Response: "x"}, http.StatusConflict, "scenario_locked"},
		{"back after start", http.MethodPost, "/api/game/back", nil, http.StatusConflict, "invalid_transition"},
		{"change character", http.MethodPost, "/api/game/character", SelectCharacterRequest{CharacterID: "kahzim"}, http.StatusConflict, "character_locked"},
	})
}

func TestEvaluatorFailureIsPartOfAttempt(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()
	env.toMap(t, s)
	env.provider.set("", errors.New("upstream exploded"))

	w := env.ok(t, http.MethodPost, "/api/game/scenarios/exclusao-digital/evaluate", s, EvaluateRequest{Response: "proposta"})
	var a game.Attempt
	json.NewDecoder(w.Body).Decode(&a)
	if a.Evaluated || a.ErrorKind != string(evaluation.KindInternal) || a.ErrorMessage == "" {
		t.Errorf("attempt = %+v", a)
	}
	if strings.Contains(a.ErrorMessage, "exploded") {
		t.Errorf("provider detail leaked: %q", a.ErrorMessage)
	}

	w = env.do(t, http.MethodPost, "/api/game/scenarios/exclusao-digital/complete", s, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestProgressPersisted(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()
	env.toMap(t, s)
	env.ok(t, http.MethodPut, "/api/game/scenarios/exclusao-digital/draft", s, DraftRequest{Text: "rascunho"})

	p, found, err := env.store.Load(context.Background(), s)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if p.CharacterID != "torin" || !p.Started || p.Screen != mission.ScreenMissionMap {
		t.Errorf("progress = %+v", p)
	}
	if p.Responses["exclusao-digital"] != "rascunho" {
		t.Errorf("draft = %q", p.Responses["exclusao-digital"])
	}
}

func TestResetClearsProgress(t *testing.T) {
	env := newTestEnv(t)
	s := uuid.NewString()
	env.toMap(t, s)
	env.ok(t, http.MethodPost, "/api/game/scenarios/exclusao-digital/evaluate", s, EvaluateRequest{Response: "proposta"})
	env.ok(t, http.MethodPost, "/api/game/scenarios/exclusao-digital/complete", s, nil)

	v := decodeView(t, env.ok(t, http.MethodPost, "/api/game/reset", s, nil))
	if v.Screen != mission.ScreenStart || v.Character != nil || v.CompletedCount != 0 || v.TotalScore != 0 {
		t.Errorf("state after reset = %+v", v.State)
	}
	if len(v.Attempts) != 0 || len(v.Responses) != 0 {
		t.Errorf("attempts = %v, responses = %v", v.Attempts, v.Responses)
	}

	// The fresh session may choose another character.
	env.ok(t, http.MethodPost, "/api/game/character", s, SelectCharacterRequest{CharacterID: "kahzim"})
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	s := uuid.NewString()
	env.toMap(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/game/events", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	for env.broker.Subscribers(s) == 0 {
		if ctx.Err() != nil {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.ok(t, http.MethodPost, "/api/game/scenarios/exclusao-digital/evaluate", s, EvaluateRequest{Response: "proposta"})

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
			if name == game.EventEvaluationFinished {
				break
			}
		}
	}
	want := []string{game.EventEvaluationStarted, game.EventEvaluationFinished}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t)

	w := env.ok(t, http.MethodGet, "/api/catalog", "", nil)
	var c CatalogResponse
	if err := json.NewDecoder(w.Body).Decode(&c); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(c.Characters) != 6 || len(c.Scenarios) != 6 {
		t.Fatalf("catalog sizes = %d characters, %d scenarios", len(c.Characters), len(c.Scenarios))
	}
	if c.Scenarios[0].ID != "exclusao-digital" || c.Scenarios[0].Instruction == "" {
		t.Errorf("first scenario = %+v", c.Scenarios[0])
	}
	if w.Header().Get(SessionHeader) != "" {
		t.Error("catalog should not create sessions")
	}
}
