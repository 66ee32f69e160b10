// Package chat runs one conversational turn: it interprets the message,
// drives any pending multi-turn flow, executes the result and renders the
// reply.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones for request timezones

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hound-taskchat/internal/action"
	"hound-taskchat/internal/conversation"
	"hound-taskchat/internal/executor"
	"hound-taskchat/internal/i18n"
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/llm"
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/reply"
	"hound-taskchat/internal/store"
	apperrors "hound-taskchat/shared/errors"
	"hound-taskchat/shared/logging"
)

// Request is one chat message.
type Request struct {
	UserID         string `json:"userId"`
	Message        string `json:"message"`
	Timezone       string `json:"timezone"`
	ConversationID string `json:"conversationId,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	Dialect        string `json:"dialect,omitempty"`

	// IdempotencyKey, when set, makes a retried request return the stored
	// response instead of running the turn again.
	IdempotencyKey string `json:"-"`
}

// Billing is reported for client compatibility. Nothing is charged.
type Billing struct {
	TokensSpent int `json:"tokensSpent"`
	Balance     int `json:"balance"`
}

// Response is the outcome of a turn.
type Response struct {
	Reply              string              `json:"reply"`
	Actions            []action.Descriptor `json:"actions"`
	NeedsClarification bool                `json:"needsClarification"`
	Candidates         []match.Candidate   `json:"candidates"`
	Billing            Billing             `json:"billing"`
	RequestID          string              `json:"requestId"`
	Debug              *llm.Debug          `json:"debug,omitempty"`
}

// Interpreter is the language-understanding capability. It never fails.
type Interpreter interface {
	Interpret(ctx context.Context, message string, loc *time.Location, now time.Time) (intent.Result, llm.Debug)
}

// Config wires an Engine. Store, Interpreter and States are required.
type Config struct {
	Store       store.Backend
	Interpreter Interpreter
	States      *conversation.Store
	Replies     *reply.Builder
	Rules       *intent.RuleExtractor
	Events      EventSink
	Logger      *logging.Logger
	Now         func() time.Time

	DefaultDialect  string
	DefaultLocation *time.Location
	// Debug attaches interpreter metadata to responses.
	Debug bool
}

// Engine is safe for concurrent use. Turns of the same conversation run one
// at a time.
type Engine struct {
	store       store.Backend
	exec        *executor.Executor
	interpreter Interpreter
	states      *conversation.Store
	replies     *reply.Builder
	rules       *intent.RuleExtractor
	events      EventSink
	logger      *logging.Logger
	now         func() time.Time

	defaultDialect string
	defaultLoc     *time.Location
	debug          bool
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Replies == nil {
		cfg.Replies = reply.New(nil)
	}
	if cfg.Rules == nil {
		cfg.Rules = intent.NewRuleExtractor(cfg.Now)
	}
	if cfg.DefaultDialect == "" {
		cfg.DefaultDialect = i18n.DefaultDialect
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	return &Engine{
		store:          cfg.Store,
		exec:           executor.New(cfg.Store, cfg.Logger, cfg.Now),
		interpreter:    cfg.Interpreter,
		states:         cfg.States,
		replies:        cfg.Replies,
		rules:          cfg.Rules,
		events:         cfg.Events,
		logger:         cfg.Logger,
		now:            cfg.Now,
		defaultDialect: cfg.DefaultDialect,
		defaultLoc:     cfg.DefaultLocation,
		debug:          cfg.Debug,
	}
}

// turn carries the per-request values through the flow handlers.
type turn struct {
	userID  string
	key     string
	message string
	loc     *time.Location
	now     time.Time

	result *intent.Result
	debug  *llm.Debug
}

// Handle runs one turn. Only request validation fails; storage and model
// faults become replies.
func (e *Engine) Handle(ctx context.Context, req Request) (*Response, error) {
	req, loc, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	key := conversation.Key(req.UserID, req.ConversationID)
	release := e.states.Acquire(key)
	defer release()

	if req.IdempotencyKey != "" {
		if resp := e.replay(ctx, req.IdempotencyKey); resp != nil {
			e.logger.Info("Replaying stored response for %s", req.IdempotencyKey)
			return resp, nil
		}
	}

	t := &turn{
		userID:  req.UserID,
		key:     key,
		message: req.Message,
		loc:     loc,
		now:     e.now(),
	}
	a := e.run(ctx, t)
	resp := e.respond(req, t, a)

	if req.IdempotencyKey != "" {
		if err := e.store.StoreIdempotencyKey(ctx, req.IdempotencyKey, resp); err != nil {
			e.logger.Warn("Failed to store idempotency key %s: %v", req.IdempotencyKey, err)
		}
	}
	return resp, nil
}

func (e *Engine) validate(req Request) (Request, *time.Location, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" {
		return req, nil, &apperrors.ValidationError{Field: "userId", Message: "is required"}
	}
	if req.Message == "" {
		return req, nil, &apperrors.ValidationError{Field: "message", Message: "is required"}
	}
	if req.Dialect == "" {
		req.Dialect = e.defaultDialect
	}
	if !i18n.ValidDialect(req.Dialect) {
		return req, nil, &apperrors.ValidationError{Field: "dialect", Message: "must be one of pal, egy, khg"}
	}
	loc := e.defaultLoc
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return req, nil, &apperrors.ValidationError{Field: "timezone", Message: "unknown timezone " + tz}
		}
		loc = l
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return req, loc, nil
}

func (e *Engine) replay(ctx context.Context, key string) *Response {
	cached, err := e.store.CheckIdempotencyKey(ctx, key)
	if err != nil {
		e.logger.Warn("Failed to check idempotency key %s: %v", key, err)
		return nil
	}
	if cached == nil {
		return nil
	}
	var resp Response
	if err := json.Unmarshal(cached, &resp); err != nil {
		e.logger.Warn("Discarding unreadable cached response for %s: %v", key, err)
		return nil
	}
	return &resp
}

// run decides which flow consumes the message. At most one state transition
// happens per turn.
func (e *Engine) run(ctx context.Context, t *turn) action.Action {
	st := e.states.Get(t.key)

	if !st.Idle() && isCancel(t.message) {
		e.states.Update(t.key, func(s *conversation.State) {
			s.Pending = nil
			s.PendingOp = nil
		})
		return action.Message{Key: "cancelled"}
	}
	if st.PendingOp != nil {
		return e.continueDelete(ctx, t, st.PendingOp)
	}
	if st.Pending != nil {
		if a, ok := e.continuePending(ctx, t, st.Pending); ok {
			return a
		}
	}
	return e.interpret(ctx, t)
}

func (e *Engine) interpret(ctx context.Context, t *turn) action.Action {
	res, dbg := e.interpreter.Interpret(ctx, t.message, t.loc, t.now)
	t.result, t.debug = &res, &dbg

	e.logger.Zap().Debug("interpreted message",
		zap.String("userId", t.userID),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
		zap.String("llmUsed", dbg.Source),
		zap.Int("attempts", dbg.Attempts),
		zap.String("lastErrorType", string(dbg.LastErrorType)),
	)
	return e.dispatch(ctx, t, res)
}

// dispatch routes an interpreted message. Deletes always go through the
// confirmation flow; everything else goes to the executor.
func (e *Engine) dispatch(ctx context.Context, t *turn, res intent.Result) action.Action {
	ent := res.Entities()

	switch res.Intent {
	case intent.DeleteTask:
		if ent.TaskID != "" {
			return e.confirmByID(ctx, t, ent.TaskID)
		}
		return e.startDelete(ctx, t, ent.LookupQuery())

	case intent.CreateTask:
		if res.Due.Kind == intent.DueMissing && ent.Title != "" {
			// without an anchor the answer applies to today
			ent.DueAt = nil
			if anchor, ok := res.Due.Time(); ok {
				ent.DueAt = &anchor
			}
			e.states.SetPending(t.key, conversation.Pending{
				Intent:        intent.CreateTask,
				ExpectedField: conversation.FieldDueTime,
				Entities:      ent,
			})
			return action.Clarify{
				Key:     "ask_due_time",
				Params:  map[string]string{"title": ent.Title},
				Message: res.ClarifyQuestion,
			}
		}

	case intent.Chat, intent.Clarify:
		if res.ClarifyQuestion != "" {
			return action.Clarify{Key: "clarify", Message: res.ClarifyQuestion}
		}
	}

	return e.execute(ctx, t, res.Intent, ent)
}

// execute runs the executor and records any follow-up question it raises.
func (e *Engine) execute(ctx context.Context, t *turn, kind intent.Kind, ent intent.Entities) action.Action {
	a := e.exec.Execute(ctx, t.userID, kind, ent, t.loc)

	if c, ok := a.(action.Clarify); ok {
		switch {
		case kind == intent.CreateTask && c.Key == "ask_title":
			e.states.SetPending(t.key, conversation.Pending{
				Intent:        intent.CreateTask,
				ExpectedField: conversation.FieldTitle,
				Entities:      ent,
			})
		case (kind == intent.UpdateTask || kind == intent.CompleteTask) && len(c.Candidates) > 1:
			e.states.SetPending(t.key, conversation.Pending{
				Intent:        kind,
				ExpectedField: conversation.FieldTaskChoice,
				Entities:      ent,
				Candidates:    c.Candidates,
			})
		}
	}

	e.emit(ctx, t, a)
	return a
}

func (e *Engine) respond(req Request, t *turn, a action.Action) *Response {
	_, clarify := a.(action.Clarify)
	needs := clarify || (t.result != nil && t.result.Intent == intent.Clarify)

	cands := action.CandidatesOf(a)
	if cands == nil {
		cands = []match.Candidate{}
	}
	resp := &Response{
		Reply:              e.replies.Build(a, req.Dialect, t.loc),
		Actions:            []action.Descriptor{action.Describe(a)},
		NeedsClarification: needs,
		Candidates:         cands,
		RequestID:          req.RequestID,
	}
	if e.debug && t.debug != nil {
		dbg := *t.debug
		resp.Debug = &dbg
	}
	return resp
}
