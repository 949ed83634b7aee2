package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/salvador2999/missions/internal/evallog"
	"github.com/salvador2999/missions/internal/evaluator"
	"github.com/salvador2999/missions/internal/ratelimit"
)

const defaultPersistTimeout = 5 * time.Second

// Limiter counts requests per identity.
type Limiter interface {
	Allow(ctx context.Context, identity string) ratelimit.Decision
}

type Options struct {
	Provider     evaluator.Provider // nil means unconfigured
	Limiter      Limiter
	Log          evallog.Sink // nil disables logging
	Logger       *slog.Logger
	MaxBodyBytes int64
	MaxTextChars int
	Timeout      time.Duration
}

type Service struct {
	provider     evaluator.Provider
	limiter      Limiter
	log          evallog.Sink
	logger       *slog.Logger
	maxBodyBytes int64
	maxTextChars int
	timeout      time.Duration
	persistWait  time.Duration
	now          func() time.Time
}

func NewService(o Options) *Service {
	if o.Timeout <= 0 {
		o.Timeout = time.Minute
	}
	return &Service{
		provider:     o.Provider,
		limiter:      o.Limiter,
		log:          o.Log,
		logger:       o.Logger,
		maxBodyBytes: o.MaxBodyBytes,
		maxTextChars: o.MaxTextChars,
		timeout:      o.Timeout,
		persistWait:  defaultPersistTimeout,
		now:          time.Now,
	}
}

// Available reports whether an evaluator is configured.
func (s *Service) Available() bool { return s.provider != nil }

// Handle runs the full pipeline on a raw request body.
func (s *Service) Handle(ctx context.Context, identity string, body io.Reader) Result {
	data, err := io.ReadAll(io.LimitReader(body, s.maxBodyBytes+1))
	if err != nil {
		s.logger.Warn("reading evaluation body", "identity", identity, "error", err)
		return fail(KindInvalidInput, msgInvalidBody)
	}
	if int64(len(data)) > s.maxBodyBytes {
		s.logger.Warn("evaluation body too large", "identity", identity, "limit", s.maxBodyBytes)
		return fail(KindPayloadTooLarge, fmt.Sprintf("Requisição muito grande. Tamanho máximo: %dKB.", s.maxBodyBytes/1000))
	}

	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		s.logger.Warn("decoding evaluation body", "identity", identity, "error", err)
		return fail(KindInvalidInput, msgInvalidBody)
	}
	return s.Evaluate(ctx, identity, req)
}

// Evaluate runs the pipeline from shape validation onward. In-process
// callers use it directly; the size guard only applies to raw bodies.
func (s *Service) Evaluate(ctx context.Context, identity string, req Request) Result {
	if msg := s.validate(req); msg != "" {
		s.logger.Warn("invalid evaluation request", "identity", identity, "reason", msg)
		return fail(KindInvalidInput, msg)
	}

	if d := s.limiter.Allow(ctx, identity); !d.Allowed {
		retry := d.RetryAfter(s.now())
		s.logger.Warn("rate limit reached", "identity", identity, "count", d.Count, "retry_after", retry)
		res := fail(KindRateLimited, "Muitas avaliações. Tente novamente em "+horizon(retry)+".")
		res.RetryAfter = retry
		return res
	}

	if s.provider == nil {
		s.logger.Error("evaluator not configured")
		return fail(KindServiceUnavailable, msgUnavailable)
	}

	return s.invoke(ctx, identity, req)
}

func (s *Service) validate(req Request) string {
	fields := []struct{ name, value string }{
		{"scenarioText", req.ScenarioText},
		{"responseText", req.ResponseText},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Sprintf("O campo '%s' deve ser uma string não vazia.", f.name)
		}
		if utf8.RuneCountInString(f.value) > s.maxTextChars {
			return fmt.Sprintf("O campo '%s' deve ter no máximo %d caracteres.", f.name, s.maxTextChars)
		}
	}
	return ""
}

// invoke calls the provider, extracts the score and logs the record. A panic
// anywhere in here becomes an internal error.
func (s *Service) invoke(ctx context.Context, identity string, req Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("evaluation panicked", "identity", identity, "panic", p)
			res = fail(KindInternal, msgInternal)
		}
	}()

	// A submitted evaluation outlives the caller; only s.timeout bounds it.
	start := s.now()
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	feedback, err := s.provider.Evaluate(callCtx, req.ScenarioText, req.ResponseText)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			s.logger.Error("evaluator timed out", "identity", identity, "provider", s.provider.Name(), "timeout", s.timeout)
			return fail(KindTimeout, msgTimeout)
		}
		s.logger.Error("evaluator failed", "identity", identity, "provider", s.provider.Name(), "error", err)
		return fail(KindInternal, msgInternal)
	}

	score := ExtractScore(feedback)
	elements := ExtractElements(feedback)

	s.logger.Info("evaluation completed",
		"identity", identity,
		"provider", s.provider.Name(),
		"score", intAttr(score),
		"elements", intAttr(elements),
		"response_chars", utf8.RuneCountInString(req.ResponseText),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)

	s.persist(ctx, req, feedback, score, elements)

	return Result{Feedback: feedback, Score: score, Elements: elements}
}

func (s *Service) persist(ctx context.Context, req Request, feedback string, score, elements *int) {
	if s.log == nil {
		return
	}
	key := req.ScenarioID
	if key == "" {
		key = ScenarioKey(req.ScenarioText)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistWait)
	defer cancel()

	rec := evallog.NewRecord(key, req.ResponseText, feedback, score, elements)
	if err := s.log.Append(ctx, rec); err != nil {
		s.logger.Error("persisting evaluation", "record_id", rec.ID, "scenario", key, "error", err)
	}
}

func intAttr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// horizon renders a retry delay for participants, rounded up to whole
// minutes or hours.
func horizon(d time.Duration) string {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	if m >= 60 {
		h := (m + 59) / 60
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	}
	if m == 1 {
		return "1 minuto"
	}
	return fmt.Sprintf("%d minutos", m)
}
