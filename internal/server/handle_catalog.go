package server

import (
	"net/http"

	"github.com/salvador2999/missions/internal/mission"
)

type CatalogScenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Zone        string `json:"zone"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
	Context     string `json:"context,omitempty"`
}

type CatalogResponse struct {
	Characters []mission.Character `json:"characters"`
	Scenarios  []CatalogScenario   `json:"scenarios"`
}

// handleCatalog serves the static reference data. It is built once since
// the catalog never changes at runtime.
func handleCatalog(c *mission.Catalog) http.HandlerFunc {
	resp := CatalogResponse{
		Characters: c.Characters,
		Scenarios:  make([]CatalogScenario, len(c.Scenarios)),
	}
	for i, sc := range c.Scenarios {
		resp.Scenarios[i] = CatalogScenario{
			ID:          sc.ID,
			Title:       sc.Title,
			Zone:        sc.Zone,
			Description: sc.Description,
			Instruction: sc.Instruction,
			Context:     sc.Context,
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, resp)
	}
}
