package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/game"
	"github.com/salvador2999/missions/internal/mission"
)

// Deps are the collaborators the HTTP routes need.
type Deps struct {
	Logger        *slog.Logger
	Evaluation    *evaluation.Service
	Games         *game.Manager
	Broker        *Broker
	SessionCookie string
	SPADir        string
}

// AddRoutes registers the API, docs and optional front-end routes.
func AddRoutes(r chi.Router, d Deps) {
	logger := d.Logger

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Missions API", "/openapi.json", "/docs"))

	r.Post("/api/evaluate", handleEvaluate(d.Evaluation))
	r.Get("/api/catalog", handleCatalog(d.Games.Catalog()))

	r.Route("/api/game", func(r chi.Router) {
		r.Use(sessionMiddleware(d.SessionCookie))

		r.Get("/state", handleGameState(d.Games, logger))
		r.Post("/character-select", handleCommand(d.Games, logger, mission.OpenCharacterSelect{}))
		r.Post("/character", handleSelectCharacter(d.Games, logger))
		r.Post("/begin", handleCommand(d.Games, logger, mission.BeginPlay{}))
		r.Post("/back", handleCommand(d.Games, logger, mission.BackToCharacterSelect{}))
		r.Post("/map", handleCommand(d.Games, logger, mission.EnterMap{}))
		r.Post("/help", handleCommand(d.Games, logger, mission.ShowHelp{}))
		r.Delete("/help", handleCommand(d.Games, logger, mission.HideHelp{}))
		r.Post("/reset", handleCommand(d.Games, logger, mission.Reset{}))

		r.Post("/scenarios/{id}/select", handleSelectScenario(d.Games, logger))
		r.Put("/scenarios/{id}/draft", handleSaveDraft(d.Games, logger))
		r.Post("/scenarios/{id}/evaluate", handleEvaluateScenario(d.Games, logger))
		r.Post("/scenarios/{id}/complete", handleCompleteScenario(d.Games, logger))

		r.Get("/events", handleEvents(d.Broker))
		r.Get("/ws", handleEventsWS(d.Broker, logger))
	})

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(d.SPADir))
		}
	}
}
