package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"traffic-quiz-service/internal/ai"
	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// UpstreamCapacityError carries the text the AI backend returned when every
// model was exhausted.
type UpstreamCapacityError struct {
	Message string
}

func (e *UpstreamCapacityError) Error() string {
	if e.Message == "" {
		return domain.ErrUpstreamCapacity.Error()
	}
	return e.Message
}

func (e *UpstreamCapacityError) Unwrap() error { return domain.ErrUpstreamCapacity }

// ClassifyAIError maps a transport failure to upstream capacity or a generic
// diagnostic failure.
func ClassifyAIError(err error) error {
	if err == nil {
		return nil
	}
	var rl *ai.ErrRateLimit
	if errors.Is(err, ai.ErrCapacityExhausted) || errors.As(err, &rl) || errors.Is(err, domain.ErrUpstreamCapacity) {
		return &UpstreamCapacityError{}
	}
	return fmt.Errorf("%w: %v", domain.ErrAIRequestFailed, err)
}

// MeteredResult is what a metered call returns to the transport layer.
type MeteredResult struct {
	RequestID string               `json:"requestId"`
	Text      string               `json:"text"`
	Cached    bool                 `json:"cached"`
	Quota     domain.QuotaDecision `json:"quota"`
}

// ExplainCall identifies an explanation request for a specific question.
type ExplainCall struct {
	QuestionID string
	Slot       string
	Hint       bool
	Request    domain.ExplainRequest
}

// AdviceCall identifies a study-advice request.
type AdviceCall struct {
	Slot    string
	Request domain.AdviceRequest
}

// MeteredCaller gates, issues and accounts AI calls, then reveals the answer.
type MeteredCaller struct {
	gate     *QuotaGate
	ledger   *Ledger
	endpoint AIEndpoint
	cache    ExplanationCache
	reveal   *Revealer
	events   UsagePublisher
	log      *logger.Logger
	timeout  time.Duration

	sf singleflight.Group
}

func NewMeteredCaller(gate *QuotaGate, ledger *Ledger, endpoint AIEndpoint, cache ExplanationCache, reveal *Revealer, events UsagePublisher, log *logger.Logger) *MeteredCaller {
	return &MeteredCaller{
		gate:     gate,
		ledger:   ledger,
		endpoint: endpoint,
		cache:    cache,
		reveal:   reveal,
		events:   events,
		log:      log.With("component", "metered"),
		timeout:  45 * time.Second,
	}
}

// WithTimeout bounds the endpoint call.
func (m *MeteredCaller) WithTimeout(d time.Duration) *MeteredCaller {
	if d > 0 {
		m.timeout = d
	}
	return m
}

// Explain returns an explanation for a wrongly answered question.
func (m *MeteredCaller) Explain(ctx context.Context, caller domain.Caller, call ExplainCall) (MeteredResult, error) {
	key := "explain:" + strings.TrimSpace(call.QuestionID)
	return m.call(ctx, caller, key, call.Slot, call.Hint, func(ctx context.Context) (string, error) {
		return m.endpoint.Explain(ctx, call.Request)
	})
}

// Advise returns study advice for a finished test. Advice for a known result
// id is cached like an explanation.
func (m *MeteredCaller) Advise(ctx context.Context, caller domain.Caller, call AdviceCall) (MeteredResult, error) {
	key := ""
	if call.Request.ResultID != "" {
		key = "advice:" + call.Request.ResultID
	}
	call.Request.UserID = caller.UserID
	return m.call(ctx, caller, key, call.Slot, false, func(ctx context.Context) (string, error) {
		return m.endpoint.Advise(ctx, call.Request)
	})
}

func (m *MeteredCaller) call(ctx context.Context, caller domain.Caller, key, slot string, isHint bool, invoke func(context.Context) (string, error)) (MeteredResult, error) {
	if res, ok := m.fromCache(ctx, caller, key, isHint); ok {
		m.startReveal(caller.UserID, slot, res)
		return res, nil
	}

	first, err := m.gate.Check(ctx, caller, isHint)
	if err != nil {
		return MeteredResult{}, fmt.Errorf("quota check: %w", err)
	}
	if !first.Allowed {
		return MeteredResult{Quota: first}, &QuotaError{Decision: first}
	}

	flightKey := fmt.Sprintf("%d|%s", caller.UserID, key)
	if key == "" {
		flightKey = fmt.Sprintf("%d|%s", caller.UserID, uuid.NewString())
	}
	v, err, _ := m.sf.Do(flightKey, func() (interface{}, error) {
		return m.issue(ctx, caller, key, isHint, invoke)
	})
	res, _ := v.(MeteredResult)
	if err != nil {
		return res, err
	}
	m.startReveal(caller.UserID, slot, res)
	return res, nil
}

// issue runs the late quota check, the network call and the accounting.
func (m *MeteredCaller) issue(ctx context.Context, caller domain.Caller, key string, isHint bool, invoke func(context.Context) (string, error)) (MeteredResult, error) {
	// an earlier flight may have stored the answer after the first lookup
	if res, ok := m.fromCache(ctx, caller, key, isHint); ok {
		return res, nil
	}
	late, err := m.gate.Recheck(ctx, caller, isHint)
	if err != nil {
		return MeteredResult{}, fmt.Errorf("quota recheck: %w", err)
	}
	if !late.Allowed {
		return MeteredResult{Quota: late}, &QuotaError{Decision: late}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	text, err := invoke(callCtx)
	if err != nil {
		classified := ClassifyAIError(err)
		m.log.Warn("ai call failed", "user_id", caller.UserID, "key", key, "error", err)
		return MeteredResult{Quota: late}, classified
	}
	if strings.Contains(text, domain.CapacityExhaustedMarker) {
		msg := strings.TrimSpace(strings.ReplaceAll(text, domain.CapacityExhaustedMarker, ""))
		m.log.Warn("ai capacity exhausted", "user_id", caller.UserID, "key", key)
		return MeteredResult{Quota: late}, &UpstreamCapacityError{Message: msg}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return MeteredResult{Quota: late}, domain.ErrAIEmptyResponse
	}

	res := MeteredResult{RequestID: uuid.NewString(), Text: text, Quota: late}
	if !caller.IsAdmin {
		res.Quota = m.account(ctx, caller, key, isHint, late)
	}
	if key != "" && m.cache != nil {
		if err := m.cache.Put(ctx, caller.UserID, key, text); err != nil {
			m.log.Warn("explanation cache write failed", "user_id", caller.UserID, "key", key, "error", err)
		}
	}
	return res, nil
}

// account increments the ledger with the server value. A failed increment is
// logged and the answer is still delivered.
func (m *MeteredCaller) account(ctx context.Context, caller domain.Caller, key string, isHint bool, late domain.QuotaDecision) domain.QuotaDecision {
	used, err := m.ledger.Increment(ctx, caller)
	if err != nil {
		m.log.Error("quota increment failed after successful ai call", "user_id", caller.UserID, "key", key, "error", err)
		return late
	}
	snap := domain.QuotaLedger{Used: used, Total: late.Total}
	m.gate.Update(caller.UserID, snap)
	if m.events != nil {
		ev := UsageEvent{Type: EventAIConsumed, UserID: caller.UserID, Used: used, Total: late.Total, Key: key, Timestamp: time.Now().UTC()}
		if err := m.events.PublishUsage(ctx, ev); err != nil {
			m.log.Warn("publish usage failed", "user_id", caller.UserID, "error", err)
		}
	}
	return CheckQuota(snap, caller, isHint)
}

// fromCache returns a stored answer without metering it.
func (m *MeteredCaller) fromCache(ctx context.Context, caller domain.Caller, key string, isHint bool) (MeteredResult, bool) {
	if key == "" {
		return MeteredResult{}, false
	}
	text, ok := m.cached(ctx, caller.UserID, key)
	if !ok {
		return MeteredResult{}, false
	}
	res := MeteredResult{RequestID: uuid.NewString(), Text: text, Cached: true}
	quota, err := m.gate.Check(ctx, caller, isHint)
	if err != nil {
		m.log.Warn("quota check failed for cached answer", "user_id", caller.UserID, "key", key, "error", err)
	}
	res.Quota = quota
	return res, true
}

func (m *MeteredCaller) cached(ctx context.Context, userID int64, key string) (string, bool) {
	if m.cache == nil {
		return "", false
	}
	text, ok, err := m.cache.Get(ctx, userID, key)
	if err != nil {
		m.log.Warn("explanation cache read failed", "user_id", userID, "key", key, "error", err)
		return "", false
	}
	return text, ok && text != ""
}

func (m *MeteredCaller) startReveal(userID int64, slot string, res MeteredResult) {
	if m.reveal == nil || slot == "" {
		return
	}
	m.reveal.Start(userID, slot, res.RequestID, res.Text)
}

// Reveals exposes the revealer for streaming transports.
func (m *MeteredCaller) Reveals() *Revealer {
	return m.reveal
}
