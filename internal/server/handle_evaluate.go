package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/salvador2999/missions/internal/evaluation"
)

// handleEvaluate is the standalone evaluation endpoint. Every outcome is a
// JSON evaluation.Response whose status follows its error kind.
func handleEvaluate(svc *evaluation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		res := svc.Handle(r.Context(), evaluation.Identity(r.Header), r.Body)
		if res.RetryAfter > 0 {
			secs := int(math.Ceil(res.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeJSON(w, res.Kind.HTTPStatus(), res.Response())
	}
}
