package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/domain"
)

// EventSink receives the frames of a streaming turn. Send returns once the
// frame was handed to the client transport. An error means the client is gone.
type EventSink interface {
	Send(event domain.StreamEvent) error
}

// TurnOutcome summarises a finished streaming turn.
type TurnOutcome struct {
	TurnID    string
	State     domain.TurnState
	MessageID string
	Content   string
	Truncated bool
	ErrorKind domain.ErrorKind
}

// activeTurn is the in-flight turn of one conversation.
type activeTurn struct {
	id     string
	cancel context.CancelFunc

	mu       sync.Mutex
	explicit bool
}

func (a *activeTurn) cancelExplicitly() {
	a.mu.Lock()
	a.explicit = true
	a.mu.Unlock()
	a.cancel()
}

func (a *activeTurn) cancelledExplicitly() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.explicit
}

// turn carries one conversation turn through its states.
type turn struct {
	id      string
	userID  string
	conv    *domain.Conversation
	adapter llm.Adapter
	request *llm.Request
	ctx     context.Context
	cancel  context.CancelFunc
	active  *activeTurn
	state   domain.TurnState
	started time.Time
}

// StreamTurn runs one streaming turn of a conversation. Errors before the
// first frame are returned and nothing is sent to sink. Once streaming has
// begun every outcome is reported through sink and the returned error is nil.
func (s *Service) StreamTurn(ctx context.Context, userID, conversationID string, req domain.TurnRequest, sink EventSink) (*TurnOutcome, error) {
	t, err := s.prepareTurn(ctx, userID, conversationID, req)
	if err != nil {
		return nil, err
	}
	defer s.endTurn(t)

	return s.streamTurn(t, sink), nil
}

// GenerateTurn runs one turn without streaming and persists the full response.
func (s *Service) GenerateTurn(ctx context.Context, userID, conversationID string, req domain.TurnRequest) (*domain.TurnResult, error) {
	t, err := s.prepareTurn(ctx, userID, conversationID, req)
	if err != nil {
		return nil, err
	}
	defer s.endTurn(t)

	bg := context.WithoutCancel(t.ctx)
	s.recordTurnEvent(bg, t, domain.EventTypeTurnStarted, s.turnPayload(t, 0))

	t.state = domain.TurnStateStreaming
	content, err := t.adapter.Generate(t.ctx, t.request)
	if err != nil {
		if s.interrupted(t, err) {
			t.state = domain.TurnStateCancelled
			s.recordTurnEvent(bg, t, domain.EventTypeTurnCancelled, s.turnPayload(t, 0))
			return nil, domain.WrapError(domain.KindClientDisconnected, err, "turn cancelled")
		}
		t.state = domain.TurnStateFailed
		payload := s.turnPayload(t, 0)
		payload.ErrorKind = kindOrNetwork(err)
		payload.Error = err.Error()
		s.recordTurnEvent(bg, t, domain.EventTypeTurnFailed, payload)
		log.Printf("WARN: turn %s on %s failed: %v", t.id, t.conv.ID, err)
		return nil, err
	}

	msg, err := s.persistAssistant(t, content, false, domain.FinishReasonStop, "", 1)
	if err != nil {
		t.state = domain.TurnStateFailed
		log.Printf("ERROR: failed to save assistant message for turn %s: %v", t.id, err)
		return nil, domain.WrapError(domain.KindInternal, err, "failed to save response")
	}
	t.state = domain.TurnStateCompleted
	payload := s.turnPayload(t, 1)
	payload.MessageID = msg.ID
	s.recordTurnEvent(bg, t, domain.EventTypeTurnCompleted, payload)

	return &domain.TurnResult{TurnID: t.id, Message: msg, Content: content, Done: true}, nil
}

// CancelTurn stops the turn in flight on a conversation.
func (s *Service) CancelTurn(ctx context.Context, userID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if !s.cancelActiveTurn(conversationID) {
		return domain.NewError(domain.KindNotFound, "no turn in progress for conversation %s", conversationID)
	}
	return nil
}

// prepareTurn walks Idle -> HistoryLoaded -> AdapterResolved. Ownership is
// checked before any adapter is resolved and nothing is written before the
// adapter is ready.
func (s *Service) prepareTurn(ctx context.Context, userID, conversationID string, req domain.TurnRequest) (*turn, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !s.limiters.allow(userID) {
		return nil, domain.NewError(domain.KindRateLimited, "too many turns, slow down")
	}

	turnCtx, cancel := context.WithCancel(ctx)
	if s.config.LLMTimeout > 0 {
		var cancelTimeout context.CancelFunc
		turnCtx, cancelTimeout = context.WithTimeout(turnCtx, s.config.LLMTimeout)
		cancelCtx := cancel
		cancel = func() {
			cancelTimeout()
			cancelCtx()
		}
	}

	t := &turn{
		id:      "turn_" + uuid.New().String()[:8],
		userID:  userID,
		conv:    conv,
		ctx:     turnCtx,
		cancel:  cancel,
		state:   domain.TurnStateIdle,
		started: time.Now(),
	}
	if t.active, err = s.beginTurn(conversationID, t.id, cancel); err != nil {
		cancel()
		return nil, err
	}

	ready := false
	defer func() {
		if !ready {
			s.endTurn(t)
		}
	}()

	history, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	t.state = domain.TurnStateHistoryLoaded

	cred, err := s.credentialFor(ctx, userID, conv.Provider)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Resolve(turnCtx, conv.Provider, conv.Model, cred)
	if err != nil {
		return nil, err
	}
	t.adapter = adapter
	t.state = domain.TurnStateAdapterResolved

	// The new user message is written only once the turn can actually run.
	if req.Message != "" {
		msg, err := s.saveMessage(ctx, conversationID, domain.RoleUser, req.Message, nil)
		if err != nil {
			return nil, err
		}
		history = append(history, *msg)
	}

	t.request = &llm.Request{
		Messages:    history,
		Temperature: clampTemperature(req.Temperature, conv.Temperature),
		MaxTokens:   clampMaxTokens(req.MaxTokens, conv.MaxTokens),
		System:      conv.SystemPrompt,
		Tools:       s.advertisedTools(ctx, userID, conv),
	}

	ready = true
	return t, nil
}

// streamTurn walks Streaming -> Completed | Failed | Cancelled. The next
// increment is only read after the previous one was written to sink, and only
// written increments count towards the persisted text.
func (s *Service) streamTurn(t *turn, sink EventSink) *TurnOutcome {
	s.recordTurnEvent(context.WithoutCancel(t.ctx), t, domain.EventTypeTurnStarted, s.turnPayload(t, 0))
	t.state = domain.TurnStateStreaming

	stream, err := t.adapter.Stream(t.ctx, t.request)
	if err != nil {
		if s.interrupted(t, err) {
			return s.finishCancelled(t, sink, "", 0)
		}
		return s.finishFailed(t, sink, "", 0, err)
	}
	defer stream.Close()

	var acc strings.Builder
	increments := 0
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			stream.Close()
			return s.finishCompleted(t, sink, acc.String(), increments)
		}
		if err != nil {
			stream.Close()
			if s.interrupted(t, err) {
				return s.finishCancelled(t, sink, acc.String(), increments)
			}
			return s.finishFailed(t, sink, acc.String(), increments, err)
		}

		if err := sink.Send(domain.ContentEvent(chunk)); err != nil {
			t.cancel()
			stream.Close()
			return s.finishCancelled(t, nil, acc.String(), increments)
		}
		acc.WriteString(chunk)
		increments++
	}
}

func (s *Service) finishCompleted(t *turn, sink EventSink, content string, increments int) *TurnOutcome {
	bg := context.WithoutCancel(t.ctx)
	out := &TurnOutcome{TurnID: t.id, Content: content}

	msg, err := s.persistAssistant(t, content, false, domain.FinishReasonStop, "", increments)
	if err != nil {
		t.state = domain.TurnStateFailed
		out.State = t.state
		out.ErrorKind = domain.KindInternal
		log.Printf("ERROR: failed to save assistant message for turn %s: %v", t.id, err)
		payload := s.turnPayload(t, increments)
		payload.ErrorKind = domain.KindInternal
		payload.Error = err.Error()
		s.recordTurnEvent(bg, t, domain.EventTypeTurnFailed, payload)
		_ = sink.Send(domain.ErrorEvent(domain.KindInternal, "failed to save response"))
		return out
	}

	t.state = domain.TurnStateCompleted
	out.State = t.state
	out.MessageID = msg.ID
	payload := s.turnPayload(t, increments)
	payload.MessageID = msg.ID
	s.recordTurnEvent(bg, t, domain.EventTypeTurnCompleted, payload)

	if err := sink.Send(domain.DoneEvent(msg.ID, false)); err != nil {
		log.Printf("Turn %s on %s: client left before done", t.id, t.conv.ID)
	}
	return out
}

// finishCancelled persists whatever was accumulated as a truncated message.
// sink is nil when the client is already gone.
func (s *Service) finishCancelled(t *turn, sink EventSink, content string, increments int) *TurnOutcome {
	bg := context.WithoutCancel(t.ctx)
	t.state = domain.TurnStateCancelled
	out := &TurnOutcome{TurnID: t.id, State: t.state, Content: content, Truncated: true, ErrorKind: domain.KindClientDisconnected}

	reason := domain.FinishReasonClientDisconnected
	if t.active.cancelledExplicitly() {
		reason = domain.FinishReasonCancelled
	}

	if content != "" {
		msg, err := s.persistAssistant(t, content, true, reason, domain.KindClientDisconnected, increments)
		if err != nil {
			log.Printf("ERROR: failed to save partial response for turn %s: %v", t.id, err)
		} else {
			out.MessageID = msg.ID
		}
	}

	payload := s.turnPayload(t, increments)
	payload.MessageID = out.MessageID
	payload.ErrorKind = domain.KindClientDisconnected
	s.recordTurnEvent(bg, t, domain.EventTypeTurnCancelled, payload)
	log.Printf("Turn %s on %s stopped (%s) after %d increments", t.id, t.conv.ID, reason, increments)

	if sink != nil {
		_ = sink.Send(domain.DoneEvent(out.MessageID, true))
	}
	return out
}

// finishFailed reports an upstream failure. Partial text is kept only when at
// least one increment arrived.
func (s *Service) finishFailed(t *turn, sink EventSink, content string, increments int, cause error) *TurnOutcome {
	bg := context.WithoutCancel(t.ctx)
	kind := kindOrNetwork(cause)
	t.state = domain.TurnStateFailed
	out := &TurnOutcome{TurnID: t.id, State: t.state, Content: content, ErrorKind: kind}

	if increments > 0 && content != "" {
		msg, err := s.persistAssistant(t, content, true, domain.FinishReasonUpstreamError, kind, increments)
		if err != nil {
			log.Printf("ERROR: failed to save partial response for turn %s: %v", t.id, err)
		} else {
			out.MessageID = msg.ID
			out.Truncated = true
		}
	}

	payload := s.turnPayload(t, increments)
	payload.MessageID = out.MessageID
	payload.ErrorKind = kind
	payload.Error = cause.Error()
	s.recordTurnEvent(bg, t, domain.EventTypeTurnFailed, payload)
	log.Printf("WARN: turn %s on %s failed: %v", t.id, t.conv.ID, cause)

	_ = sink.Send(domain.ErrorEvent(kind, cause.Error()))
	return out
}

// persistAssistant writes the assistant message on a context detached from
// the client so that disconnects do not lose the partial text.
func (s *Service) persistAssistant(t *turn, content string, truncated bool, reason domain.FinishReason, kind domain.ErrorKind, increments int) (*domain.Message, error) {
	ctx := context.WithoutCancel(t.ctx)
	if s.config.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PersistTimeout)
		defer cancel()
	}

	meta, err := json.Marshal(domain.AssistantMetadata{
		TurnID:       t.id,
		Provider:     t.conv.Provider,
		Model:        t.conv.Model,
		Truncated:    truncated,
		FinishReason: reason,
		ErrorKind:    kind,
		Increments:   increments,
		LatencyMs:    time.Since(t.started).Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.saveMessage(ctx, t.conv.ID, domain.RoleAssistant, content, meta)
}

func (s *Service) recordTurnEvent(ctx context.Context, t *turn, eventType domain.EventType, payload domain.TurnEventPayload) {
	if err := s.recordEvent(ctx, t.conv.ID, t.id, eventType, payload); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}

func (s *Service) turnPayload(t *turn, increments int) domain.TurnEventPayload {
	p := domain.TurnEventPayload{
		Provider:   t.conv.Provider,
		Model:      t.conv.Model,
		Increments: increments,
		LatencyMs:  time.Since(t.started).Milliseconds(),
	}
	if t.request != nil {
		p.Tools = len(t.request.Tools)
	}
	return p
}

// interrupted reports whether err is the result of the turn being cancelled
// rather than an upstream failure.
func (s *Service) interrupted(t *turn, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(t.ctx.Err(), context.Canceled)
}

// advertisedTools snapshots the enabled tools and drops those the policy blocks.
func (s *Service) advertisedTools(ctx context.Context, userID string, conv *domain.Conversation) []domain.ToolDescriptor {
	if s.tools == nil {
		return nil
	}
	enabled := s.tools.EnabledTools()
	if s.policyEngine == nil || len(enabled) == 0 {
		return enabled
	}
	allowed, err := s.policyEngine.Filter(ctx, userID, conv.Provider, conv.Model, enabled)
	if err != nil {
		log.Printf("WARN: tool policy evaluation failed, advertising no tools: %v", err)
		return nil
	}
	return allowed
}

// beginTurn registers the turn as in flight. One turn per conversation.
func (s *Service) beginTurn(conversationID, turnID string, cancel context.CancelFunc) (*activeTurn, error) {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	if _, busy := s.turns[conversationID]; busy {
		return nil, domain.NewError(domain.KindConflict, "a turn is already in progress for conversation %s", conversationID)
	}
	a := &activeTurn{id: turnID, cancel: cancel}
	s.turns[conversationID] = a
	return a, nil
}

func (s *Service) endTurn(t *turn) {
	s.turnsMu.Lock()
	if a, ok := s.turns[t.conv.ID]; ok && a.id == t.id {
		delete(s.turns, t.conv.ID)
	}
	s.turnsMu.Unlock()
	t.cancel()
	if t.adapter != nil {
		closeAdapter(t.adapter)
	}
}

func (s *Service) cancelActiveTurn(conversationID string) bool {
	s.turnsMu.Lock()
	a := s.turns[conversationID]
	s.turnsMu.Unlock()
	if a == nil {
		return false
	}
	a.cancelExplicitly()
	return true
}

func closeAdapter(a llm.Adapter) {
	if err := a.Close(); err != nil {
		log.Printf("WARN: failed to close adapter: %v", err)
	}
}

func kindOrNetwork(err error) domain.ErrorKind {
	if kind := domain.KindOf(err); kind != "" {
		return kind
	}
	return domain.KindUpstreamNetwork
}
