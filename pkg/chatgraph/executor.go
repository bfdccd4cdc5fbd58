package chatgraph

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/assistkit/chatgraph/pkg/chatgraph/checkpoint"
	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
	"github.com/assistkit/chatgraph/pkg/chatgraph/observability"
	"github.com/assistkit/chatgraph/pkg/chatgraph/registry"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
)

// node is a position in the turn state machine.
type node int

const (
	nodeChat node = iota
	nodeTools
	nodeDone
)

// String returns the node name for logs and spans.
func (n node) String() string {
	switch n {
	case nodeChat:
		return "chat"
	case nodeTools:
		return "tools"
	case nodeDone:
		return "done"
	default:
		return "unknown"
	}
}

// routeAfterChat is the conditional edge: a response that declares tool
// calls goes to the tool node, anything else completes the turn.
// Pure function of the response.
func routeAfterChat(resp *llm.CompletionResponse) node {
	if resp.HasToolCalls() {
		return nodeTools
	}
	return nodeDone
}

// FinalAnswer is the caller-visible outcome of a completed turn.
type FinalAnswer struct {
	ConversationID string
	// Content is the assistant's terminal message.
	Content string
	// ToolsUsed lists the distinct tools invoked during the turn, in
	// first-use order.
	ToolsUsed []string
	// TurnCount is the conversation's chat invocation count so far.
	TurnCount int
	// Usage aggregates token consumption across the turn's model calls.
	Usage llm.TokenUsage
}

// Executor drives conversation turns through the state machine:
// chat node, conditional edge, tool node, looping until a terminal
// answer is produced, with a checkpoint written after every node.
//
// Turns for different conversations run concurrently; turns for the
// same conversation are serialized by a conversation-scoped lock, and
// the checkpoint version check rejects writers that slipped past it.
type Executor struct {
	store   checkpoint.Store
	model   llm.Invoker
	tools   *tool.Registry
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	maxToolRounds int
	systemPrompt  string
	maxTokens     int
	temperature   float64

	locks *registry.Registry[string, *sync.Mutex]
}

// New creates an executor over a checkpoint store, a model invoker, and
// a tool registry. A nil registry means the model gets no tools.
func New(store checkpoint.Store, model llm.Invoker, tools *tool.Registry, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if model == nil {
		return nil, errors.New("model invoker is required")
	}
	if tools == nil {
		tools = tool.NewRegistry()
	}

	e := &Executor{
		store:         store,
		model:         model,
		tools:         tools,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
		maxToolRounds: DefaultMaxToolRounds,
		locks:         registry.New[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run drives one conversational turn: load or create state, append the
// user message, execute the state machine, persist, and return the
// assistant's terminal answer.
//
// Failure modes are typed: *StorageError when the checkpoint store is
// unreachable, *ModelUnavailableError when every model candidate is
// exhausted, *LoopBoundError when the chat/tool cycle hits the bound,
// and *ConflictError when a concurrent writer won the persist race.
// Tool failures never surface here; they are fed back to the model as
// error-content tool messages.
func (e *Executor) Run(ctx context.Context, conversationID, userMessage string, opts ...RunOption) (answer *FinalAnswer, runErr error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUserMessage
	}

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Serialize turns for the same conversation.
	lock := e.locks.GetOrCreate(conversationID, func() *sync.Mutex { return new(sync.Mutex) })
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	state, version, err := e.loadOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// A checkpoint stuck in awaiting_tool_result means a previous turn
	// crashed between the chat and tool nodes. Resume at the tool node so
	// the persisted tool calls still execute. The new user message is
	// held back until the tool results are in: providers require tool
	// messages to directly follow the assistant message that requested
	// them.
	startNode := nodeChat
	var deferredUser *llm.Message
	if state.Status == StatusAwaitingToolResult && len(state.PendingToolCalls) > 0 {
		startNode = nodeTools
		msg := llm.UserMessage(userMessage)
		deferredUser = &msg
	} else {
		state.Status = StatusInProgress
		state.PendingToolCalls = nil
		if !trailingUserRepeat(state, userMessage) {
			state.Append(llm.UserMessage(userMessage))
		}
	}

	observability.LogTurnStart(e.logger, conversationID, state.TurnCount+1)

	turnCtx, turnSpan := e.spans.StartTurnSpan(ctx, conversationID, state.TurnCount+1)
	defer func() {
		e.spans.EndSpanWithError(turnSpan, runErr)
	}()

	var lastNode string
	var rounds int
	answer, lastNode, rounds, runErr = e.runTurn(turnCtx, state, version, startNode, deferredUser, cfg.sink)

	duration := time.Since(start)
	e.metrics.RecordTurn(ctx, runErr == nil, duration)
	if runErr != nil {
		observability.LogTurnError(e.logger, conversationID, runErr, float64(duration.Milliseconds()), lastNode)
		return nil, runErr
	}
	observability.LogTurnComplete(e.logger, conversationID, float64(duration.Milliseconds()), rounds)
	return answer, nil
}

// runTurn executes the state machine until a terminal node or failure.
// Returns the answer, the node where execution stopped, and the number
// of tool rounds performed. A non-nil deferredUser is appended after the
// first tool node completes (the resume-from-pending-calls path).
func (e *Executor) runTurn(ctx context.Context, state *ConversationState, version int64, current node, deferredUser *llm.Message, sink Sink) (*FinalAnswer, string, int, error) {
	var (
		rounds    int
		toolsUsed []string
		usage     llm.TokenUsage
	)

	for {
		// Check for cancellation before each node. Nothing has been
		// written since the last completed node, so the checkpoint stays
		// consistent.
		if err := ctx.Err(); err != nil {
			return nil, current.String(), rounds, err
		}

		switch current {
		case nodeChat:
			observability.LogNodeStart(e.logger, "chat")
			nodeCtx, span := e.spans.StartNodeSpan(ctx, "chat")
			nodeStart := time.Now()

			state.TurnCount++
			resp, err := e.chatNode(nodeCtx, state, sink)

			nodeDuration := time.Since(nodeStart)
			e.metrics.RecordNodeExecution(nodeCtx, "chat", nodeDuration, err)
			e.spans.EndSpanWithError(span, err)

			if err != nil {
				observability.LogNodeError(e.logger, "chat", err)
				if ctx.Err() != nil {
					return nil, "chat", rounds, ctx.Err()
				}
				var unavailable *llm.UnavailableError
				if errors.As(err, &unavailable) {
					// Persist progress so the next attempt resumes
					// instead of restarting the turn.
					if _, saveErr := e.persist(ctx, state, version); saveErr != nil {
						observability.LogCheckpointError(e.logger, state.ConversationID, "save", saveErr)
					}
					return nil, "chat", rounds, &ModelUnavailableError{
						ConversationID: state.ConversationID,
						Err:            err,
					}
				}
				return nil, "chat", rounds, err
			}
			observability.LogNodeComplete(e.logger, "chat", float64(nodeDuration.Milliseconds()))

			usage.Add(resp.Usage)
			state.Append(resp.Message())

			next := routeAfterChat(resp)
			e.spans.AddSpanEvent(ctx, "route."+next.String())
			if next == nodeTools {
				state.PendingToolCalls = resp.ToolCalls
				state.Status = StatusAwaitingToolResult
			} else {
				state.PendingToolCalls = nil
				state.Status = StatusCompleted
			}

			newVersion, err := e.persist(ctx, state, version)
			if err != nil {
				return nil, "chat", rounds, err
			}
			version = newVersion
			current = next

		case nodeTools:
			if rounds >= e.maxToolRounds {
				state.Status = StatusFailed
				state.PendingToolCalls = nil
				if _, saveErr := e.persist(ctx, state, version); saveErr != nil {
					observability.LogCheckpointError(e.logger, state.ConversationID, "save", saveErr)
				}
				return nil, "tools", rounds, &LoopBoundError{
					ConversationID: state.ConversationID,
					Bound:          e.maxToolRounds,
				}
			}
			rounds++

			observability.LogNodeStart(e.logger, "tools")
			nodeCtx, span := e.spans.StartNodeSpan(ctx, "tools")
			nodeStart := time.Now()

			toolsUsed = append(toolsUsed, e.toolNode(nodeCtx, state)...)

			nodeDuration := time.Since(nodeStart)
			e.metrics.RecordNodeExecution(nodeCtx, "tools", nodeDuration, nil)
			e.spans.EndSpanWithError(span, nil)
			observability.LogNodeComplete(e.logger, "tools", float64(nodeDuration.Milliseconds()))

			if deferredUser != nil {
				state.Append(*deferredUser)
				deferredUser = nil
			}

			state.PendingToolCalls = nil
			state.Status = StatusInProgress

			// Partial-turn write: a crash after this point resumes with
			// the tool results already in the history.
			newVersion, err := e.persist(ctx, state, version)
			if err != nil {
				return nil, "tools", rounds, err
			}
			version = newVersion
			current = nodeChat

		case nodeDone:
			last, _ := state.LastAssistantMessage()
			return &FinalAnswer{
				ConversationID: state.ConversationID,
				Content:        last.Content,
				ToolsUsed:      dedupe(toolsUsed),
				TurnCount:      state.TurnCount,
				Usage:          usage,
			}, "done", rounds, nil
		}
	}
}

// chatNode asks the model for the next assistant message, passing the
// full history and the registered tool schemas.
func (e *Executor) chatNode(ctx context.Context, state *ConversationState, sink Sink) (*llm.CompletionResponse, error) {
	req := llm.CompletionRequest{
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Tools:       e.tools.Schemas(),
	}

	// Providers carry system text in a dedicated request field, so
	// system-role messages are lifted out of the history here.
	for _, msg := range state.Messages {
		if msg.Role == llm.RoleSystem {
			if req.SystemPrompt != "" {
				req.SystemPrompt += "\n\n"
			}
			req.SystemPrompt += msg.Content
			continue
		}
		req.Messages = append(req.Messages, msg)
	}

	if sink != nil {
		return e.model.CompleteStream(ctx, req, sink)
	}
	return e.model.Complete(ctx, req)
}

// toolNode executes the pending tool calls in model order and appends
// each result as a tool-role message. Returns the tool names invoked.
func (e *Executor) toolNode(ctx context.Context, state *ConversationState) []string {
	results := e.tools.ExecuteAll(ctx, state.PendingToolCalls)

	used := make([]string, 0, len(results))
	for _, res := range results {
		observability.LogToolExecution(e.logger, res.Name, res.CallID, float64(res.Duration.Milliseconds()), res.IsError)
		e.metrics.RecordToolExecution(ctx, res.Name, res.Duration, res.IsError)
		state.Append(res.Message())
		used = append(used, res.Name)
	}
	return used
}

// loadOrCreate loads the conversation checkpoint, or initializes fresh
// state (with the system prompt, when configured) on first contact.
func (e *Executor) loadOrCreate(ctx context.Context, conversationID string) (*ConversationState, int64, error) {
	data, version, err := e.store.Load(ctx, conversationID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		state := NewConversationState(conversationID)
		if e.systemPrompt != "" {
			state.Append(llm.SystemMessage(e.systemPrompt))
		}
		return state, 0, nil
	}
	if err != nil {
		return nil, 0, &StorageError{ConversationID: conversationID, Op: "load", Err: err}
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, 0, &StorageError{ConversationID: conversationID, Op: "decode", Err: err}
	}
	return state, version, nil
}

// persist writes the state through the checkpoint envelope with an
// optimistic version check.
func (e *Executor) persist(ctx context.Context, state *ConversationState, expectedVersion int64) (int64, error) {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return 0, &StorageError{ConversationID: state.ConversationID, Op: "encode", Err: err}
	}

	cp := checkpoint.New(state.ConversationID, state.TurnCount, string(state.Status), stateBytes)
	data, err := cp.Marshal()
	if err != nil {
		return 0, &StorageError{ConversationID: state.ConversationID, Op: "encode", Err: err}
	}

	newVersion, err := e.store.Save(ctx, state.ConversationID, data, expectedVersion)
	if err != nil {
		if errors.Is(err, checkpoint.ErrVersionConflict) {
			return 0, &ConflictError{ConversationID: state.ConversationID, Err: err}
		}
		return 0, &StorageError{ConversationID: state.ConversationID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(e.logger, state.ConversationID, len(data), newVersion)
	e.metrics.RecordCheckpoint(ctx, state.ConversationID, int64(len(data)))
	return newVersion, nil
}

// History returns the persisted message log for a conversation.
// Returns checkpoint.ErrNotFound when the conversation does not exist.
func (e *Executor) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}

	data, _, err := e.store.Load(ctx, conversationID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &StorageError{ConversationID: conversationID, Op: "load", Err: err}
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, &StorageError{ConversationID: conversationID, Op: "decode", Err: err}
	}
	return state.Messages, nil
}

// ClearHistory deletes a conversation's checkpoint. The next message
// starts a fresh conversation.
func (e *Executor) ClearHistory(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}

	lock := e.locks.GetOrCreate(conversationID, func() *sync.Mutex { return new(sync.Mutex) })
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.Delete(ctx, conversationID); err != nil {
		return &StorageError{ConversationID: conversationID, Op: "delete", Err: err}
	}
	return nil
}

// Health probes the checkpoint store. A missing probe row is healthy;
// any other failure is not.
func (e *Executor) Health(ctx context.Context) error {
	_, _, err := e.store.Load(ctx, "health-probe")
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return &StorageError{ConversationID: "health-probe", Op: "load", Err: err}
	}
	return nil
}

// decodeState unwraps a checkpoint envelope into conversation state.
func decodeState(data []byte) (*ConversationState, error) {
	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	var state ConversationState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// trailingUserRepeat reports whether the last persisted message is a
// user message with this exact content. That only happens when an
// earlier attempt failed after appending the user message but before
// the model answered; re-appending it on the retried attempt would
// duplicate it.
func trailingUserRepeat(state *ConversationState, userMessage string) bool {
	if len(state.Messages) == 0 {
		return false
	}
	last := state.Messages[len(state.Messages)-1]
	return last.Role == llm.RoleUser && last.Content == userMessage
}

// dedupe keeps the first occurrence of each name, preserving order.
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
