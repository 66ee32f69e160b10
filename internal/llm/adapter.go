// Package llm interprets chat messages with Gemini structured output and
// degrades to the rule extractor when the model is unavailable.
package llm

import (
	"context"
	"encoding/json"
	"time"

	"hound-taskchat/internal/intent"
	"hound-taskchat/shared/logging"
)

const (
	SourceGemini   = "gemini"
	SourceFallback = "fallback_rule"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-1.5-flash"
	// DefaultBackoff is the pause before retrying after a retryable failure.
	DefaultBackoff = 500 * time.Millisecond

	maxErrorMessage = 160
)

// Debug reports which path served a result. It is for logs and debug
// responses only.
type Debug struct {
	Source           string    `json:"llm_used"`
	Model            string    `json:"model"`
	KeysCount        int       `json:"keys_count"`
	Attempts         int       `json:"attempted_keys"`
	UsedKeyIndex     int       `json:"used_key_index"`
	LastErrorType    ErrorKind `json:"last_error_type,omitempty"`
	LastErrorMessage string    `json:"last_error_message,omitempty"`
}

// Config wires an Adapter.
type Config struct {
	Pool      *KeyPool
	Generator Generator
	Model     string
	Rules     *intent.RuleExtractor
	Logger    *logging.Logger
	Backoff   time.Duration
	// Disabled forces the rule extractor.
	Disabled bool
}

// Adapter is the language-understanding capability.
type Adapter struct {
	pool     *KeyPool
	gen      Generator
	model    string
	rules    *intent.RuleExtractor
	logger   *logging.Logger
	backoff  time.Duration
	disabled bool

	sleep func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an Adapter.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Rules == nil {
		cfg.Rules = intent.NewRuleExtractor(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Adapter{
		pool:     cfg.Pool,
		gen:      cfg.Generator,
		model:    cfg.Model,
		rules:    cfg.Rules,
		logger:   cfg.Logger,
		backoff:  cfg.Backoff,
		disabled: cfg.Disabled,
		sleep:    sleepCtx,
	}
}

// Enabled reports whether model calls can be attempted.
func (a *Adapter) Enabled() bool {
	return !a.disabled && a.gen != nil && a.pool.Len() > 0
}

// Interpret classifies message. It never fails: every model error ends in
// the rule extractor, and the returned Debug says so.
func (a *Adapter) Interpret(ctx context.Context, message string, loc *time.Location, now time.Time) (intent.Result, Debug) {
	if loc == nil {
		loc = time.UTC
	}
	dbg := Debug{
		Source:       SourceGemini,
		Model:        a.model,
		KeysCount:    a.pool.Len(),
		UsedKeyIndex: -1,
	}
	if !a.Enabled() {
		return a.fallback(message, loc, &dbg), dbg
	}

	req := Request{
		Model:  a.model,
		System: systemPrompt,
		Prompt: userPrompt(message, loc, now),
		Schema: responseSchema(),
	}

	for dbg.Attempts < a.pool.Len() {
		if ctx.Err() != nil {
			dbg.LastErrorType = KindTimeout
			dbg.LastErrorMessage = truncate(ctx.Err().Error())
			break
		}
		key, idx, _ := a.pool.Next()
		dbg.Attempts++

		res, err := a.attempt(ctx, key, req)
		if err == nil {
			dbg.UsedKeyIndex = idx
			return res, dbg
		}

		kind := Classify(err)
		dbg.LastErrorType = kind
		dbg.LastErrorMessage = truncate(err.Error())
		a.logger.Warn("gemini attempt %d/%d with key #%d failed (%s): %v", dbg.Attempts, a.pool.Len(), idx, kind, err)

		if kind == KindModelNotFound {
			// no other key can serve an unknown model
			break
		}
		if kind == KindInvalidResponse {
			continue
		}
		a.pool.CoolDown(idx)
		if kind.Retryable() && dbg.Attempts < a.pool.Len() {
			if err := a.sleep(ctx, a.backoff); err != nil {
				break
			}
		}
	}

	a.logger.Error("gemini unavailable after %d attempt(s), using rule extractor: %s", dbg.Attempts, dbg.LastErrorType)
	return a.fallback(message, loc, &dbg), dbg
}

func (a *Adapter) attempt(ctx context.Context, key string, req Request) (intent.Result, error) {
	text, err := a.gen.Generate(ctx, key, req)
	if err != nil {
		return intent.Result{}, err
	}
	return decodeResult(text)
}

func (a *Adapter) fallback(message string, loc *time.Location, dbg *Debug) intent.Result {
	dbg.Source = SourceFallback
	return a.rules.Extract(message, loc)
}

// decodeResult reads the model's JSON. duration_minutes may come back as a
// float.
func decodeResult(text string) (intent.Result, error) {
	var wire struct {
		intent.Result
		Duration *float64 `json:"duration_minutes"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return intent.Result{}, &errInvalidResponse{cause: err}
	}
	res := wire.Result
	if wire.Duration != nil {
		res.DurationMinutes = int(*wire.Duration + 0.5)
	}
	if !res.Intent.Valid() {
		return intent.Result{}, &errInvalidResponse{cause: errUnknownIntent(res.Intent)}
	}
	res.Normalize()
	return res, nil
}

type errUnknownIntent intent.Kind

func (e errUnknownIntent) Error() string { return "unknown intent " + string(e) }

func truncate(s string) string {
	if r := []rune(s); len(r) > maxErrorMessage {
		return string(r[:maxErrorMessage])
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
