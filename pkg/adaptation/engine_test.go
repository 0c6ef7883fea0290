package adaptation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

var testNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store, err := memory.NewStore(memory.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	store.SetClock(func() time.Time { return testNow })
	e := NewEngine(store, DefaultSettings())
	e.SetClock(func() time.Time { return testNow })
	return e, store
}

func TestProcessMessage_FormalTechnicalQuestion(t *testing.T) {
	e, _ := newTestEngine(t)
	out := e.ProcessMessage(context.Background(), "u1", "Could you please explain the algorithm implementation?")
	require.False(t, out.Degraded, "err: %v", out.Err)

	f, ok := out.Deltas[personality.Formality]
	require.True(t, ok, "formality should move")
	assert.Greater(t, f, 0.0)
	assert.LessOrEqual(t, f, 0.2)

	td, ok := out.Deltas[personality.TechnicalDepth]
	require.True(t, ok, "technical depth should move")
	assert.Greater(t, td, 0.0)
	assert.LessOrEqual(t, td, 0.2)

	assert.InDelta(t, 0.55, out.Vector[personality.Formality], 1e-9)
}

func TestProcessMessage_CasualExcitedMessage(t *testing.T) {
	e, _ := newTestEngine(t)
	out := e.ProcessMessage(context.Background(), "u2", "Hey! That's awesome lol 😂")
	require.False(t, out.Degraded, "err: %v", out.Err)

	assert.Greater(t, out.Deltas[personality.Humor], 0.0)
	assert.Greater(t, out.Deltas[personality.Enthusiasm], 0.0)
	assert.LessOrEqual(t, out.Deltas[personality.Formality], 0.0)
}

func TestProcessMessage_PersistsTurn(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	out := e.ProcessMessage(ctx, "u3", "Could you please explain the algorithm implementation?")
	require.False(t, out.Degraded)

	store.ClearCache()
	p := store.GetProfile(ctx, "u3")
	assert.Equal(t, 1, p.ConversationCount)
	assert.Equal(t, 1, p.EvolutionMetrics.TotalAdaptations)
	assert.InDelta(t, out.Deltas.Magnitude(), p.EvolutionMetrics.LargestPersonalityChange, 1e-9)
	assert.Equal(t, out.Vector, p.PersonalityVector)

	entry, ok := p.ConversationHistory.Newest()
	require.True(t, ok)
	assert.Equal(t, "Could you please explain the algorithm implementation?", entry.Message)
	assert.Equal(t, 1.0, entry.MessageAnalysis.Style["formality"])
}

func TestAdapt_StepIsLimited(t *testing.T) {
	s := DefaultSettings()
	s.LearningRate = 1
	e := NewEngine(nil, s)

	sig := signals.Neutral()
	sig.Style.Formality = 1
	sig.Style.Humor = 0

	deltas, updated := e.Adapt(personality.DefaultVector(), sig)
	assert.InDelta(t, 0.2, deltas[personality.Formality], 1e-12)
	assert.InDelta(t, -0.2, deltas[personality.Humor], 1e-12)
	assert.InDelta(t, 0.7, updated[personality.Formality], 1e-12)
	assert.InDelta(t, 0.3, updated[personality.Humor], 1e-12)
}

func TestAdapt_DeadBand(t *testing.T) {
	e := NewEngine(nil, DefaultSettings())
	sig := signals.Neutral()
	// (0.6-0.5)*0.1 = 0.01 sits on the dead-band and is dropped.
	sig.Style.Formality = 0.6
	sig.Style.Humor = 0.65

	deltas, updated := e.Adapt(personality.DefaultVector(), sig)
	_, moved := deltas[personality.Formality]
	assert.False(t, moved)
	assert.Equal(t, 0.5, updated[personality.Formality])
	assert.InDelta(t, 0.015, deltas[personality.Humor], 1e-12)
}

func TestAdapt_TargetsEqualCurrentIsIdempotent(t *testing.T) {
	e := NewEngine(nil, DefaultSettings())
	deltas, updated := e.Adapt(personality.DefaultVector(), signals.Neutral())
	assert.Empty(t, deltas)
	assert.Equal(t, personality.DefaultVector(), updated)
}

func TestAdapt_RespectsConfiguredBounds(t *testing.T) {
	s := DefaultSettings()
	s.LearningRate = 1
	s.Bounds[personality.Humor] = personality.Bound{Min: 0.45, Max: 0.55}
	e := NewEngine(nil, s)

	sig := signals.Neutral()
	sig.Style.Humor = 1
	_, updated := e.Adapt(personality.DefaultVector(), sig)
	assert.Equal(t, 0.55, updated[personality.Humor])
}

func TestTargets_SentimentScalesEnthusiasm(t *testing.T) {
	sig := signals.Neutral()
	sig.Style.Enthusiasm = 0.4

	sig.SentimentNormalized = 0.5
	assert.InDelta(t, 0.4, Targets(sig)[personality.Enthusiasm], 1e-12)
	sig.SentimentNormalized = 1
	assert.InDelta(t, 0.8, Targets(sig)[personality.Enthusiasm], 1e-12)
	sig.SentimentNormalized = 0
	assert.Equal(t, 0.0, Targets(sig)[personality.Enthusiasm])

	sig.Style.Verbosity = 3
	assert.Equal(t, 1.0, Targets(sig)[personality.Verbosity])
}

func TestApply_StabilityAfterWindow(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		out := e.ProcessMessage(ctx, "u4", "Hey! That's awesome lol 😂")
		require.False(t, out.Degraded)
	}
	m := store.GetProfile(ctx, "u4").EvolutionMetrics
	assert.Equal(t, 5, m.LearningProgression.Len())
	assert.Less(t, m.StabilityScore, 1.0)
	assert.Greater(t, m.StabilityScore, 0.5)
}

func TestApply_HistoryCappedAtAdaptationCapacity(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		e.ProcessMessage(ctx, "u5", "ok")
	}
	p := store.GetProfile(ctx, "u5")
	assert.Equal(t, 10, p.ConversationHistory.Len())
	assert.Equal(t, 15, p.ConversationCount)
}

func FuzzAdaptStaysInBounds(f *testing.F) {
	f.Add(0.5, 1.0, 0.0, 0.3, 2.0)
	f.Add(0.0, 0.0, 1.0, 1.0, 0.0)
	f.Add(1.0, -5.0, 9.0, math.Inf(1), -1.0)
	e := NewEngine(nil, DefaultSettings())

	f.Fuzz(func(t *testing.T, cur, formality, humor, enthusiasm, sentiment float64) {
		current := personality.DefaultVector()
		current[personality.Formality] = cur
		sig := signals.Neutral()
		sig.Style.Formality = formality
		sig.Style.Humor = humor
		sig.Style.Enthusiasm = enthusiasm
		sig.SentimentNormalized = sentiment

		deltas, updated := e.Adapt(current, sig)
		for _, d := range personality.Dimensions {
			v := updated[d]
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("%s out of bounds: %v", d, v)
			}
		}
		for d, v := range deltas {
			if math.Abs(v) > 0.2+1e-12 {
				t.Fatalf("%s delta %v exceeds max step", d, v)
			}
			if math.Abs(v) <= 0.01 {
				t.Fatalf("%s delta %v inside dead-band", d, v)
			}
		}
	})
}

type failingStore struct {
	profile personality.UserProfile
	err     error
	panics  bool
}

func (f *failingStore) GetProfile(ctx context.Context, userID string) personality.UserProfile {
	return f.profile.Clone()
}

func (f *failingStore) Update(ctx context.Context, userID string, fn func(*personality.UserProfile) error) (personality.UserProfile, error) {
	if f.panics {
		panic("store exploded")
	}
	return personality.UserProfile{}, f.err
}

func TestApply_StoreFailureFallsBack(t *testing.T) {
	p := personality.NewProfile("u6", testNow, personality.DefaultCapacities())
	p.PersonalityVector[personality.Humor] = 0.9
	store := &failingStore{profile: p, err: memory.ErrWriteFailed}
	e := NewEngine(store, DefaultSettings())

	out := e.ProcessMessage(context.Background(), "u6", "Hey! That's awesome lol 😂")
	assert.True(t, out.Degraded)
	assert.True(t, errors.Is(out.Err, memory.ErrWriteFailed))
	assert.Empty(t, out.Deltas)
	assert.Equal(t, 0.9, out.Vector[personality.Humor])
}

func TestApply_PanicFallsBack(t *testing.T) {
	store := &failingStore{profile: personality.NewProfile("u7", testNow, personality.DefaultCapacities()), panics: true}
	e := NewEngine(store, DefaultSettings())

	out := e.Apply(context.Background(), "u7", "hello", signals.Neutral())
	assert.True(t, out.Degraded)
	assert.Error(t, out.Err)
	assert.Equal(t, personality.DefaultVector(), out.Vector)
}
