package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/game"
)

// HealthResponse documents the /healthz body: one entry per dependency.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

// ScenarioPath is the scenario ID path parameter.
type ScenarioPath struct {
	ID string `path:"id"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Missions API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Scenario progression and proposal evaluation for the intervention missions game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/evaluate
	postEvaluate, _ := r.NewOperationContext(http.MethodPost, "/api/evaluate")
	postEvaluate.SetSummary("Evaluate a proposal")
	postEvaluate.SetDescription("Scores a response to a scenario against the five-element rubric. " +
		"Rate limited per forwarded client address; 429 responses carry Retry-After.")
	postEvaluate.AddReqStructure(evaluation.Request{})
	for _, status := range []int{
		http.StatusOK,
		http.StatusBadRequest,
		http.StatusRequestEntityTooLarge,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		postEvaluate.AddRespStructure(evaluation.Response{}, openapi.WithHTTPStatus(status))
	}
	_ = r.AddOperation(postEvaluate)

	// GET /api/catalog
	getCatalog, _ := r.NewOperationContext(http.MethodGet, "/api/catalog")
	getCatalog.SetSummary("Catalog")
	getCatalog.SetDescription("Characters and scenarios in play order.")
	getCatalog.AddRespStructure(CatalogResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getCatalog)

	// GET /api/game/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/game/state")
	getState.SetSummary("Get game state")
	getState.SetDescription("Returns the session's progress and evaluation attempts. " +
		"The session comes from a Bearer token or the session cookie and is created on first use.")
	getState.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getState)

	commands := []struct {
		method, path, summary, description string
		req                                any
	}{
		{http.MethodPost, "/api/game/character-select", "Open character selection", "Moves from the start screen to character selection.", nil},
		{http.MethodPost, "/api/game/character", "Select character", "Chooses the character. Fixed once the mission map has been entered.", SelectCharacterRequest{}},
		{http.MethodPost, "/api/game/begin", "Begin play", "Shows the adventure introduction. Requires a character.", nil},
		{http.MethodPost, "/api/game/back", "Back to character selection", "Returns from the introduction before play has started.", nil},
		{http.MethodPost, "/api/game/map", "Enter mission map", "Shows the mission map and closes any open scenario.", nil},
		{http.MethodPost, "/api/game/help", "Show help", "Opens the help screen.", nil},
		{http.MethodDelete, "/api/game/help", "Hide help", "Returns to the open scenario or the mission map.", nil},
		{http.MethodPost, "/api/game/reset", "Reset progress", "Discards all progress and pending evaluations.", nil},
	}
	for _, c := range commands {
		op, _ := r.NewOperationContext(c.method, c.path)
		op.SetSummary(c.summary)
		op.SetDescription(c.description)
		if c.req != nil {
			op.AddReqStructure(c.req)
		}
		op.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
		_ = r.AddOperation(op)
	}

	// POST /api/game/scenarios/{id}/select
	selectScenario, _ := r.NewOperationContext(http.MethodPost, "/api/game/scenarios/{id}/select")
	selectScenario.SetSummary("Open scenario")
	selectScenario.SetDescription("Opens an unlocked scenario.")
	selectScenario.AddReqStructure(ScenarioPath{})
	selectScenario.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	selectScenario.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	selectScenario.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(selectScenario)

	// PUT /api/game/scenarios/{id}/draft
	putDraft, _ := r.NewOperationContext(http.MethodPut, "/api/game/scenarios/{id}/draft")
	putDraft.SetSummary("Save draft")
	putDraft.SetDescription("Stores in-progress text. Editing an evaluated draft requires a new evaluation.")
	putDraft.AddReqStructure(struct {
		ScenarioPath
		DraftRequest
	}{})
	putDraft.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	putDraft.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(putDraft)

	// POST /api/game/scenarios/{id}/evaluate
	postAttempt, _ := r.NewOperationContext(http.MethodPost, "/api/game/scenarios/{id}/evaluate")
	postAttempt.SetSummary("Evaluate scenario response")
	postAttempt.SetDescription("Evaluates the response and records it as the scenario's attempt. " +
		"Evaluator failures are reported inside the attempt.")
	postAttempt.AddReqStructure(struct {
		ScenarioPath
		EvaluateRequest
	}{})
	postAttempt.AddRespStructure(game.Attempt{}, openapi.WithHTTPStatus(http.StatusOK))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postAttempt)

	// POST /api/game/scenarios/{id}/complete
	postComplete, _ := r.NewOperationContext(http.MethodPost, "/api/game/scenarios/{id}/complete")
	postComplete.SetSummary("Complete scenario")
	postComplete.SetDescription("Completes the scenario when its latest evaluation scores at least 160 with 4 valid elements.")
	postComplete.AddReqStructure(ScenarioPath{})
	postComplete.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postComplete.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postComplete.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postComplete.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postComplete)

	// GET /api/game/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/game/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events for the session: evaluation_started, evaluation_finished, scenario_completed, progress_reset.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/game/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/game/ws")
	getWS.SetSummary("WebSocket event stream")
	getWS.SetDescription("Same events as the SSE stream, one JSON text frame per event.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
