package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/salvador2999/missions/internal/evaluation"
)

const (
	msgUnreachable = "Serviço temporariamente indisponível. Tente novamente mais tarde."
	msgBadReply    = "Erro interno do servidor."
	maxReplyBytes  = 1 << 20
)

// HTTP posts requests to a remote evaluation handler. The caller identity
// travels in X-Forwarded-For so the remote limiter keys on the participant.
type HTTP struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTP(endpoint string, client *http.Client, logger *slog.Logger) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{endpoint: endpoint, client: client, logger: logger}
}

func (h *HTTP) Send(ctx context.Context, identity string, req evaluation.Request) evaluation.Result {
	res, err := h.send(ctx, identity, req)
	if err != nil {
		kind := evaluation.KindServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = evaluation.KindTimeout
		}
		h.logger.Error("remote evaluation failed", "endpoint", h.endpoint, "error", err)
		return evaluation.Result{Kind: kind, Message: msgUnreachable}
	}
	return res
}

func (h *HTTP) send(ctx context.Context, identity string, req evaluation.Request) (evaluation.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return evaluation.Result{}, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return evaluation.Result{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if identity != "" && identity != evaluation.UnknownIdentity {
		httpReq.Header.Set("X-Forwarded-For", identity)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return evaluation.Result{}, fmt.Errorf("posting evaluation: %w", err)
	}
	defer resp.Body.Close()

	var reply evaluation.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&reply); err != nil {
		h.logger.Warn("undecodable evaluation reply", "status", resp.StatusCode, "error", err)
		kind := evaluation.KindForStatus(resp.StatusCode)
		if kind == "" {
			kind = evaluation.KindInternal
		}
		return evaluation.Result{Kind: kind, Message: msgBadReply}, nil
	}

	if resp.StatusCode == http.StatusOK && reply.Success {
		return evaluation.Result{
			Feedback: reply.Evaluation,
			Score:    reply.Score,
			Elements: reply.ElementsCount,
		}, nil
	}

	kind := reply.Kind
	if kind == "" {
		kind = evaluation.KindForStatus(resp.StatusCode)
	}
	if kind == "" {
		// 200 without success.
		kind = evaluation.KindInternal
	}
	msg := reply.Error
	if msg == "" {
		msg = msgBadReply
	}
	return evaluation.Result{Kind: kind, Message: msg}, nil
}
