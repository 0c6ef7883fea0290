// Package adaptation nudges a user's personality vector toward the style of
// each incoming message under a learning rate, a per-turn step limit and a
// dead-band, and keeps the user's evolution metrics current.
package adaptation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dotsetgreg/dotpersona/pkg/config"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

// ProfileStore is the subset of memory.Store the engine needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) personality.UserProfile
	Update(ctx context.Context, userID string, fn func(*personality.UserProfile) error) (personality.UserProfile, error)
}

type Settings struct {
	LearningRate    float64
	MaxStep         float64
	DeadBand        float64
	Bounds          personality.Bounds
	HistoryCapacity int
	StabilityWindow int
}

func DefaultSettings() Settings {
	return Settings{
		LearningRate:    0.1,
		MaxStep:         0.2,
		DeadBand:        0.01,
		Bounds:          personality.DefaultBounds(),
		HistoryCapacity: personality.DefaultAdaptationHistory,
		StabilityWindow: 5,
	}
}

func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	bounds, err := personality.BoundsFromConfig(cfg.Persona.Bounds)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		LearningRate:    cfg.Persona.LearningRate,
		MaxStep:         cfg.Persona.MaxStep,
		DeadBand:        cfg.Persona.DeadBand,
		Bounds:          bounds,
		HistoryCapacity: cfg.Persona.HistoryCapacity,
		StabilityWindow: cfg.Persona.StabilityWindow,
	}, nil
}

type Engine struct {
	store    ProfileStore
	settings Settings
	now      func() time.Time
}

func NewEngine(store ProfileStore, settings Settings) *Engine {
	if settings.Bounds == nil {
		settings.Bounds = personality.DefaultBounds()
	}
	return &Engine{store: store, settings: settings, now: time.Now}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) Settings() Settings { return e.settings }

// Targets maps message signals onto the value each dimension should move
// toward. The enthusiasm target is style enthusiasm × 2 × normalized
// sentiment rather than the plain product, so that neutral sentiment (0.5)
// leaves style enthusiasm unchanged. Positive sentiment raises it, negative
// lowers it.
func Targets(sig signals.Signals) personality.Vector {
	return personality.Vector{
		personality.Formality:      sig.Style.Formality,
		personality.Enthusiasm:     clamp01(sig.Style.Enthusiasm * 2 * sig.SentimentNormalized),
		personality.Humor:          sig.Style.Humor,
		personality.TechnicalDepth: sig.Style.Technical,
		personality.Empathy:        sig.Style.Emotional,
		personality.Verbosity:      math.Min(sig.Style.Verbosity, 1),
	}
}

// Adapt computes the bounded deltas for one message and the updated vector.
// It does not touch storage.
func (e *Engine) Adapt(current personality.Vector, sig signals.Signals) (personality.Deltas, personality.Vector) {
	targets := Targets(sig)
	deltas := personality.Deltas{}
	updated := current.Normalize(e.settings.Bounds)

	for _, dim := range personality.Dimensions {
		cur := updated[dim]
		desired := (targets[dim] - cur) * e.settings.LearningRate
		applied := math.Max(-e.settings.MaxStep, math.Min(e.settings.MaxStep, desired))
		if math.IsNaN(applied) || math.Abs(applied) <= e.settings.DeadBand {
			continue
		}
		deltas[dim] = applied
		updated[dim] = e.settings.Bounds.For(dim).Clamp(cur + applied)
	}
	return deltas, updated
}

type Outcome struct {
	Deltas   personality.Deltas
	Vector   personality.Vector
	Signals  signals.Signals
	Degraded bool
	Err      error
}

// ProcessMessage extracts signals from message and applies them.
func (e *Engine) ProcessMessage(ctx context.Context, userID, message string) Outcome {
	res := signals.Analyze(message)
	out := e.Apply(ctx, userID, message, res.Signals)
	if res.Degraded && !out.Degraded {
		out.Degraded = true
		out.Err = res.Err
	}
	return out
}

// Apply adapts the stored vector for userID and records the turn. Any fault
// leaves the stored vector unchanged and is reported through Degraded.
func (e *Engine) Apply(ctx context.Context, userID, message string, sig signals.Signals) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = e.fallback(ctx, userID, sig, fmt.Errorf("adaptation panic: %v", r))
		}
	}()

	var deltas personality.Deltas
	profile, err := e.store.Update(ctx, userID, func(p *personality.UserProfile) error {
		now := e.now().UTC()
		var updated personality.Vector
		deltas, updated = e.Adapt(p.PersonalityVector, sig)
		p.PersonalityVector = updated
		p.EvolutionMetrics.Record(now, deltas, e.settings.StabilityWindow)
		p.AppendHistory(personality.ConversationEntry{
			Timestamp:         now,
			Message:           message,
			MessageAnalysis:   sig.Analysis(),
			PersonalityVector: updated.Clone(),
		}, e.settings.HistoryCapacity)
		p.ConversationCount++
		p.LastUpdated = now
		return nil
	})
	if err != nil {
		return e.fallback(ctx, userID, sig, err)
	}

	if len(deltas) > 0 {
		logger.DebugCF("adaptation", "Personality adapted", map[string]interface{}{
			"user_id":   userID,
			"magnitude": deltas.Magnitude(),
			"changes":   len(deltas),
		})
	}
	return Outcome{Deltas: deltas, Vector: profile.PersonalityVector.Clone(), Signals: sig}
}

func (e *Engine) fallback(ctx context.Context, userID string, sig signals.Signals, err error) Outcome {
	logger.WarnCF("adaptation", "Adaptation failed, keeping current personality", map[string]interface{}{
		"user_id": userID,
		"error":   err.Error(),
	})
	vector := personality.DefaultVector()
	func() {
		defer func() { _ = recover() }()
		vector = e.store.GetProfile(ctx, userID).PersonalityVector.Clone()
	}()
	return Outcome{
		Deltas:   personality.Deltas{},
		Vector:   vector,
		Signals:  sig,
		Degraded: true,
		Err:      err,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
