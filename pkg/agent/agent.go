// Package agent runs the per-turn pipeline: signal extraction, adaptation,
// response generation and evaluation, either directly or as a gateway fed by
// the message bus.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotpersona/pkg/adaptation"
	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

var ErrEmptyMessage = errors.New("agent: message is empty")

// Journal is the optional evaluation history and metric sink.
type Journal interface {
	evaluation.Journal
	CategoryCounts(ctx context.Context, userID string) (map[string]int, error)
	AddMetric(ctx context.Context, metric string, value float64, labels map[string]string) error
}

type Options struct {
	Store     *memory.Store
	Engine    *adaptation.Engine
	Evaluator *evaluation.Evaluator
	Responder Responder
	Journal   Journal
	Bus       *bus.MessageBus
}

type Agent struct {
	store     *memory.Store
	engine    *adaptation.Engine
	evaluator *evaluation.Evaluator
	responder Responder
	journal   Journal
	bus       *bus.MessageBus

	// activeUsers counts gateway drain goroutines.
	activeUsers atomic.Int64
}

// TurnResult is the outcome of ProcessTurn.
type TurnResult struct {
	TurnID       string             `json:"turn_id" yaml:"turn_id"`
	UserID       string             `json:"user_id" yaml:"user_id"`
	ResponseText string             `json:"response_text" yaml:"response_text"`
	Deltas       personality.Deltas `json:"evolution_deltas" yaml:"evolution_deltas"`
	Vector       personality.Vector `json:"updated_vector" yaml:"updated_vector"`
	Signals      signals.Signals    `json:"signals" yaml:"signals"`
	Degraded     bool               `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// Report is the evaluation quality report plus the journal's category
// distribution when a journal is configured.
type Report struct {
	evaluation.Report    `yaml:",inline"`
	CategoryDistribution map[string]int `json:"category_distribution,omitempty" yaml:"category_distribution,omitempty"`
}

func New(opts Options) (*Agent, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("agent: profile store is required")
	}
	if opts.Engine == nil {
		opts.Engine = adaptation.NewEngine(opts.Store, adaptation.DefaultSettings())
	}
	if opts.Evaluator == nil {
		var j evaluation.Journal
		if opts.Journal != nil {
			j = opts.Journal
		}
		opts.Evaluator = evaluation.NewEvaluator(opts.Store, j, evaluation.DefaultSettings())
	}
	if opts.Responder == nil {
		opts.Responder = StyleResponder{}
	}
	return &Agent{
		store:     opts.Store,
		engine:    opts.Engine,
		evaluator: opts.Evaluator,
		responder: opts.Responder,
		journal:   opts.Journal,
		bus:       opts.Bus,
	}, nil
}

func (a *Agent) Store() *memory.Store { return a.store }

// ProcessTurn adapts the user's personality to message and produces a reply.
// An empty userID is replaced by a fresh anonymous id. Faults inside the
// pipeline degrade the result instead of failing it.
func (a *Agent) ProcessTurn(ctx context.Context, userID, message string) (TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	userID = ResolveUserID(userID, "", "")

	out := a.engine.ProcessMessage(ctx, userID, message)
	result := TurnResult{
		TurnID:   uuid.NewString(),
		UserID:   userID,
		Deltas:   out.Deltas,
		Vector:   out.Vector,
		Signals:  out.Signals,
		Degraded: out.Degraded,
	}

	profile := a.store.GetProfile(ctx, userID)
	text, err := a.respond(ctx, ResponseInput{
		UserID:            userID,
		Message:           message,
		Vector:            out.Vector,
		Signals:           out.Signals,
		ConversationCount: profile.ConversationCount,
	})
	if err != nil {
		logger.WarnCF("agent", "Responder failed, using fallback reply", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		text = fallbackResponse
		result.Degraded = true
	}
	result.ResponseText = text

	if len(out.Deltas) > 0 {
		a.metric(ctx, "adaptation.magnitude", out.Deltas.Magnitude(), map[string]string{"user_id": userID})
	}
	logger.DebugCF("agent", "Turn processed", map[string]interface{}{
		"user_id":   userID,
		"turn_id":   result.TurnID,
		"anonymous": isAnonymous(userID),
		"changes":   len(out.Deltas),
		"degraded":  result.Degraded,
	})
	return result, nil
}

func (a *Agent) respond(ctx context.Context, in ResponseInput) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()
	text, err = a.responder.Respond(ctx, in)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("responder returned empty text")
	}
	return text, err
}

// EvaluateTurn scores a message/response pair and folds it into the user's
// running quality metrics.
func (a *Agent) EvaluateTurn(ctx context.Context, userID, message, response string, latency time.Duration) evaluation.Result {
	res := a.evaluator.Evaluate(ctx, userID, message, response, latency)
	if !res.Degraded {
		a.metric(ctx, "turn.latency_ms", float64(latency.Milliseconds()), map[string]string{"user_id": userID})
	}
	return res
}

func (a *Agent) QualityReport(ctx context.Context, userID string) (Report, error) {
	if strings.TrimSpace(userID) == "" {
		return Report{}, memory.ErrEmptyUserID
	}
	r := Report{Report: a.evaluator.QualityReport(ctx, userID)}
	if a.journal != nil {
		counts, err := a.journal.CategoryCounts(ctx, userID)
		if err != nil {
			return r, fmt.Errorf("category distribution: %w", err)
		}
		r.CategoryDistribution = counts
	}
	return r, nil
}

func (a *Agent) metric(ctx context.Context, name string, value float64, labels map[string]string) {
	if a.journal == nil {
		return
	}
	if err := a.journal.AddMetric(ctx, name, value, labels); err != nil {
		logger.DebugCF("agent", "Metric write failed", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
	}
}
