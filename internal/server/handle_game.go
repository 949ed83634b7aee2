package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/game"
	"github.com/salvador2999/missions/internal/mission"
	"github.com/salvador2999/missions/internal/policy"
)

type SelectCharacterRequest struct {
	CharacterID string `json:"characterId"`
}

type DraftRequest struct {
	Text string `json:"text"`
}

type EvaluateRequest struct {
	Response string `json:"response"`
}

const msgInvalidBody = "Body inválido. Envie um JSON válido."

var gameErrors = []struct {
	err    error
	status int
	kind   string
	msg    string
}{
	{mission.ErrUnknownScenario, http.StatusNotFound, "unknown_scenario", "Missão não encontrada."},
	{mission.ErrUnknownCharacter, http.StatusNotFound, "unknown_character", "Personagem não encontrado."},
	{mission.ErrScenarioLocked, http.StatusConflict, "scenario_locked", "Esta missão ainda está bloqueada."},
	{mission.ErrNoCharacterSelected, http.StatusConflict, "no_character_selected", "Escolha um personagem antes de continuar."},
	{mission.ErrEmptyResponse, http.StatusConflict, "empty_response", "Escreva sua proposta antes de enviar."},
	{mission.ErrScenarioCompleted, http.StatusConflict, "scenario_completed", "Esta missão já foi concluída."},
	{mission.ErrCharacterLocked, http.StatusConflict, "character_locked", "O personagem não pode ser trocado depois que a aventura começou."},
	{mission.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "Ação indisponível nesta tela."},
	{game.ErrEvaluationPending, http.StatusConflict, "evaluation_pending", "Aguarde o fim da avaliação em andamento."},
	{game.ErrNotEvaluated, http.StatusUnprocessableEntity, "not_evaluated", policy.MessageNotEvaluated},
	{game.ErrBelowThreshold, http.StatusUnprocessableEntity, "below_threshold", policy.MessageBelowMinimum},
}

func writeGameError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, ge := range gameErrors {
		if errors.Is(err, ge.err) {
			writeError(w, ge.status, ge.kind, ge.msg)
			return
		}
	}
	logger.Error("game request failed", "error", err)
	writeError(w, http.StatusInternalServerError, string(evaluation.KindInternal), "Erro interno do servidor.")
}

func handleGameState(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := games.State(r.Context(), sessionFrom(r))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleCommand applies a body-less state-machine command.
func handleCommand(games *game.Manager, logger *slog.Logger, cmd mission.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := games.Apply(r.Context(), sessionFrom(r), cmd)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSelectCharacter(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectCharacterRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, string(evaluation.KindInvalidInput), msgInvalidBody)
			return
		}

		v, err := games.Apply(r.Context(), sessionFrom(r), mission.SelectCharacter{CharacterID: req.CharacterID})
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSelectScenario(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd := mission.SelectScenario{ID: chi.URLParam(r, "id")}
		v, err := games.Apply(r.Context(), sessionFrom(r), cmd)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSaveDraft(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DraftRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, string(evaluation.KindInvalidInput), msgInvalidBody)
			return
		}

		cmd := mission.SaveDraft{ID: chi.URLParam(r, "id"), Text: req.Text}
		v, err := games.Apply(r.Context(), sessionFrom(r), cmd)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleEvaluateScenario runs one evaluation for the session. Evaluator
// failures are part of the returned attempt, not HTTP errors.
func handleEvaluateScenario(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluateRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, string(evaluation.KindInvalidInput), msgInvalidBody)
			return
		}

		a, err := games.Evaluate(r.Context(), sessionFrom(r), participantIdentity(r), chi.URLParam(r, "id"), req.Response)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// participantIdentity keys the rate limiter for game sessions. Direct
// connections without forwarding headers fall back to the peer address.
func participantIdentity(r *http.Request) string {
	id := evaluation.Identity(r.Header)
	if id != evaluation.UnknownIdentity {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return id
}

func handleCompleteScenario(games *game.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := games.Submit(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
