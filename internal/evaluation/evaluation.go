// Package evaluation is the request handler behind POST /api/evaluate. It
// guards size, shape and rate, calls the evaluator, extracts a score from the
// free-text answer and logs the outcome. Failures come back as a Result with
// a Kind; nothing escapes as a Go error.
package evaluation

import (
	"net/http"
	"time"
)

type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal_error"
)

// HTTPStatus maps a kind to its response status. The empty kind is success.
func (k Kind) HTTPStatus() int {
	switch k {
	case "":
		return http.StatusOK
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus is the inverse of HTTPStatus for clients reading a remote
// handler's reply.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusOK:
		return ""
	case http.StatusBadRequest:
		return KindInvalidInput
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return KindServiceUnavailable
	case http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}

// Participant-facing messages.
const (
	msgInvalidBody = "Body inválido. Envie um JSON válido."
	msgUnavailable = "Serviço temporariamente indisponível. Tente novamente mais tarde."
	msgTimeout     = "A avaliação demorou demais para responder. Tente novamente."
	msgInternal    = "Erro interno do servidor."
)

// Request is the wire body of an evaluation request. ScenarioID is optional;
// when absent the log key is derived from ScenarioText.
type Request struct {
	ScenarioID   string `json:"scenarioId,omitempty"`
	ScenarioText string `json:"scenarioText"`
	ResponseText string `json:"responseText"`
}

// Response is the wire body of an evaluation reply.
type Response struct {
	Success       bool   `json:"success"`
	Evaluation    string `json:"evaluation,omitempty"`
	Score         *int   `json:"score,omitempty"`
	ElementsCount *int   `json:"elementsCount,omitempty"`
	Error         string `json:"error,omitempty"`
	Kind          Kind   `json:"kind,omitempty"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Kind       Kind
	Message    string
	Feedback   string
	Score      *int
	Elements   *int
	RetryAfter time.Duration
}

func (r Result) OK() bool { return r.Kind == "" }

func (r Result) Response() Response {
	if !r.OK() {
		return Response{Error: r.Message, Kind: r.Kind}
	}
	return Response{
		Success:       true,
		Evaluation:    r.Feedback,
		Score:         r.Score,
		ElementsCount: r.Elements,
	}
}

func fail(kind Kind, msg string) Result {
	return Result{Kind: kind, Message: msg}
}
