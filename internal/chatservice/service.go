// Package chatservice is the orchestrator of spec.md §4.7: it wires
// authentication, model validation, outbound encoding, the upstream HTTP
// call, response decoding, inbound adaptation, and accounting into the
// single per-request pipeline.
package chatservice

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/mixaill76/cursor-gateway/internal/cursorclock"
	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/inbound"
	"github.com/mixaill76/cursor-gateway/internal/modelregistry"
	"github.com/mixaill76/cursor-gateway/internal/monitoring"
	"github.com/mixaill76/cursor-gateway/internal/outbound"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/requestlog"
	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
	"github.com/mixaill76/cursor-gateway/internal/telemetry"
	"github.com/mixaill76/cursor-gateway/internal/tokenhealth"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
	"github.com/mixaill76/cursor-gateway/internal/upstreamclient"
	"github.com/mixaill76/cursor-gateway/internal/worker"
)

// Service holds every collaborator the orchestrator needs.
type Service struct {
	Tokens  *tokenmanager.Manager
	Models  *modelregistry.Registry
	Health  *tokenhealth.Tracker
	Proxies *proxypool.Pool
	Builder *upstreamclient.Builder
	Log     *requestlog.Log
	Logger  *slog.Logger
	Metrics *monitoring.Metrics
	Tracer  trace.Tracer

	AdminKeyPrefix     string
	SharedKey          string
	DynamicKeysEnabled bool
	RealUsage          bool

	// Jobs is the background worker pool's intake queue (spec.md §4.7 step
	// 7's profile refresh and the usage-fetch follow-up). Nil in tests that
	// construct a bare Service; submit() falls back to a direct goroutine.
	Jobs chan worker.Job

	// upgradeMu/upgradeWaiters coalesce concurrent PKCE upgrades for the
	// same token key into a single upstream round trip, mirroring the
	// teacher's VertexTokenManager refresh coalescing. Zero value is a
	// valid empty map-on-demand state.
	upgradeMu      sync.Mutex
	upgradeWaiters map[cursortoken.TokenKey][]chan upgradeOutcome
}

// Protocol is the caller-facing wire shape to adapt the decoder events
// into (spec.md §4.6).
type Protocol int

const (
	ProtocolOpenAI Protocol = iota
	ProtocolAnthropic
)

// ChatRequest is the protocol-agnostic input the HTTP layer parses into
// before calling the orchestrator.
type ChatRequest struct {
	Model        string
	Body         outbound.Request
	Protocol     Protocol
	Stream       bool
	IncludeUsage bool
	AdminPath    bool
}

// Result is returned for non-streaming calls; for streaming calls the
// response has already been written to w by the time Run returns.
type Result struct {
	Body []byte
}

// Run executes steps 1-8 for one request, writing a streaming response
// directly to w/flusher, or returning a full body in Result for
// non-streaming callers.
func (s *Service) Run(ctx context.Context, r *http.Request, req ChatRequest, w http.ResponseWriter, flusher inbound.Flusher) (Result, error) {
	startedAt := cursorclock.AdjustedNow()
	traceID := uuid.New().String()

	ctx, span := telemetry.StartRequestSpan(ctx, s.tracer(), traceID, req.Model)

	ext, _, err := s.authenticate(r)
	if err != nil {
		telemetry.EndRequestSpan(span, err)
		return Result{}, err
	}

	result, err := s.runWithToken(ctx, ext, traceID, req, w, flusher, startedAt)
	telemetry.EndRequestSpan(span, err)
	return result, err
}

// tracer returns the configured tracer, or a no-op one when Service was
// built without tracing wired in (e.g. unit tests constructing a bare
// Service).
func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return telemetry.GetTracer(false)
}

// runWithToken is Run's body, factored out so a successful session
// upgrade (maybeRetrySessionExpiry) can retry with the already-resolved,
// now-refreshed token bundle instead of re-authenticating from the
// original request headers.
func (s *Service) runWithToken(ctx context.Context, ext *cursortoken.ExtToken, traceID string, req ChatRequest, w http.ResponseWriter, flusher inbound.Flusher, startedAt time.Time) (Result, error) {
	model, err := s.Models.Lookup(req.Model)
	if err != nil {
		return Result{}, cursorerr.ErrModelNotSupported
	}

	enc, err := outbound.Encode(req.Body, model)
	if err != nil {
		return Result{}, err
	}

	logID := s.Log.Add(*ext, traceID, startedAt)

	upReq, err := s.Builder.Build(ctx, ext, enc, req.AdminPath)
	if err != nil {
		s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchFailure, Error: err.Error()})
		return Result{}, err
	}

	client := s.Proxies.Get(ext.Proxy)
	resp, sendErr := upstreamclient.Send(client, upReq)
	if sendErr != nil {
		if newExt, upgraded := s.maybeRetrySessionExpiry(ctx, ext, sendErr); upgraded {
			return s.runWithToken(ctx, newExt, traceID, req, w, flusher, startedAt)
		}
		tripped := s.Health.RecordFailure(ext.Primary.Key())
		if s.Metrics != nil {
			s.Metrics.RecordTokenFailure(ext.Primary.Key().String(), tripped)
		}
		s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchFailure, Error: sendErr.Error()})
		return Result{}, sendErr
	}
	defer resp.Body.Close()

	s.Health.RecordSuccess(ext.Primary.Key())

	result, err := s.decodeAndStream(resp, req, w, flusher, logID, startedAt)
	if _, id, ok := s.Tokens.GetByKey(ext.Primary.Key()); ok {
		s.submit(profileRefreshJob{svc: s, id: id})
	}
	return result, err
}

func (s *Service) decodeAndStream(resp *http.Response, req ChatRequest, w http.ResponseWriter, flusher inbound.Flusher, logID requestlog.ID, startedAt time.Time) (Result, error) {
	dec := streamdecoder.New(cursorclock.AdjustedNow)

	var id string
	var openaiStream *inbound.OpenAIStream
	var anthropicStream *inbound.AnthropicStream
	var acc *inbound.Accumulator

	switch {
	case req.Stream && req.Protocol == ProtocolOpenAI:
		id = inbound.NewChatCompletionID()
		openaiStream = inbound.NewOpenAIStream(id, req.Model, startedAt.Unix(), req.IncludeUsage)
	case req.Stream && req.Protocol == ProtocolAnthropic:
		id = inbound.NewAnthropicMessageID()
		anthropicStream = inbound.NewAnthropicStream(id, req.Model)
		if err := anthropicStream.Start(w, flusher); err != nil {
			return Result{}, cursorerr.Wrap(cursorerr.ClassInternal, http.StatusInternalServerError, "StreamWriteFailed", "failed to start stream", err)
		}
	case req.Protocol == ProtocolOpenAI:
		id = inbound.NewChatCompletionID()
		acc = inbound.NewAccumulator()
	default:
		id = inbound.NewAnthropicMessageID()
		acc = inbound.NewAccumulator()
	}

	buf := make([]byte, 32*1024)
	firstBytesDelivered := false

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Decode(buf[:n])
			if decErr != nil {
				if !firstBytesDelivered {
					s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchFailure, Error: decErr.Error()})
					return Result{}, cursorerr.FromUpstream(asUpstreamError(decErr))
				}
				s.emitMidStreamError(w, flusher, req, openaiStream, anthropicStream, decErr)
				break
			}
			for _, msg := range msgs {
				firstBytesDelivered = true
				if err := s.emit(w, flusher, msg, openaiStream, anthropicStream, acc); err != nil {
					return Result{}, err
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	seconds := cursorclock.AdjustedNow().Sub(startedAt).Seconds()
	s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchTiming, Seconds: seconds})
	s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchDelays, Content: decodeDelaysToFloats(dec)})
	s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchSuccess})
	if s.Metrics != nil {
		s.Metrics.RecordRequestLogOutcome("success")
	}

	if s.RealUsage && req.IncludeUsage {
		s.submit(usageFetchJob{svc: s, logID: logID})
	}

	if acc != nil {
		return s.buildNonStreamResult(req, acc, id, startedAt)
	}
	return Result{}, nil
}

func (s *Service) emit(w http.ResponseWriter, flusher inbound.Flusher, msg streamdecoder.Message, openaiStream *inbound.OpenAIStream, anthropicStream *inbound.AnthropicStream, acc *inbound.Accumulator) error {
	switch {
	case openaiStream != nil:
		return openaiStream.HandleEvent(w, flusher, msg)
	case anthropicStream != nil:
		return anthropicStream.HandleEvent(w, flusher, msg)
	case acc != nil:
		acc.Feed(msg)
		return nil
	}
	return nil
}

// emitMidStreamError translates a post-headers decode failure into the
// synthetic in-stream error event of spec.md §7, rather than failing the
// whole HTTP response (headers are already committed by this point).
func (s *Service) emitMidStreamError(w http.ResponseWriter, flusher inbound.Flusher, req ChatRequest, openaiStream *inbound.OpenAIStream, anthropicStream *inbound.AnthropicStream, err error) {
	switch {
	case openaiStream != nil:
		_, env := cursorerr.ToOpenAI(err)
		_ = writeSSEErrorChunk(w, flusher, env)
	case anthropicStream != nil:
		_, env := cursorerr.ToAnthropic(err)
		_ = writeAnthropicErrorEvent(w, flusher, env)
	}
}

func decodeDelaysToFloats(dec *streamdecoder.Decoder) []float32 {
	delays := dec.ContentDelays
	out := make([]float32, len(delays))
	for i, d := range delays {
		out[i] = d.Seconds
	}
	return out
}

