package chatservice

import (
	"time"

	"github.com/mixaill76/cursor-gateway/internal/inbound"
)

func (s *Service) buildNonStreamResult(req ChatRequest, acc *inbound.Accumulator, id string, startedAt time.Time) (Result, error) {
	if req.Protocol == ProtocolAnthropic {
		body, err := acc.BuildAnthropicResponse(id, req.Model, nil)
		if err != nil {
			return Result{}, err
		}
		return Result{Body: body}, nil
	}
	body, err := acc.BuildOpenAIResponse(id, req.Model, startedAt.Unix(), nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: body}, nil
}
