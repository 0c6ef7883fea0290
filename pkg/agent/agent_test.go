package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/evallog"
	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAgent(t *testing.T, opts Options) *Agent {
	t.Helper()
	if opts.Store == nil {
		store, err := memory.NewStore(memory.Options{Dir: t.TempDir()})
		require.NoError(t, err)
		opts.Store = store
	}
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

type failingResponder struct{}

func (failingResponder) Respond(context.Context, ResponseInput) (string, error) {
	return "", errors.New("model unavailable")
}

// stallingResponder blocks every turn for one user until release closes.
type stallingResponder struct {
	user    string
	release chan struct{}
}

func (r stallingResponder) Respond(ctx context.Context, in ResponseInput) (string, error) {
	if in.UserID == r.user {
		select {
		case <-r.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return StyleResponder{}.Respond(ctx, in)
}

func TestProcessTurn_FormalTechnicalMessage(t *testing.T) {
	a := newTestAgent(t, Options{})
	ctx := context.Background()

	res, err := a.ProcessTurn(ctx, "u1", "Could you please explain the algorithm implementation and its database architecture?")
	require.NoError(t, err)

	assert.Equal(t, "u1", res.UserID)
	assert.NotEmpty(t, res.TurnID)
	assert.NotEmpty(t, res.ResponseText)
	assert.False(t, res.Degraded)
	assert.Greater(t, res.Deltas[personality.TechnicalDepth], 0.0)
	assert.Greater(t, res.Vector[personality.TechnicalDepth], personality.DefaultValue)

	p := a.Store().GetProfile(ctx, "u1")
	assert.Equal(t, 1, p.ConversationCount)
	assert.Equal(t, 1, p.ConversationHistory.Len())
}

func TestProcessTurn_EmptyMessage(t *testing.T) {
	a := newTestAgent(t, Options{})
	_, err := a.ProcessTurn(context.Background(), "u1", "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestProcessTurn_AnonymousUser(t *testing.T) {
	a := newTestAgent(t, Options{})
	res, err := a.ProcessTurn(context.Background(), "", "hello there")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.UserID, anonymousPrefix), res.UserID)
}

func TestProcessTurn_ResponderFailureFallsBack(t *testing.T) {
	a := newTestAgent(t, Options{Responder: failingResponder{}})
	res, err := a.ProcessTurn(context.Background(), "u1", "lol that's so funny haha")
	require.NoError(t, err)

	assert.Equal(t, fallbackResponse, res.ResponseText)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Deltas, "adaptation still applies when the reply fails")
}

func TestEvaluateTurn_UpdatesQualityMetrics(t *testing.T) {
	a := newTestAgent(t, Options{})
	ctx := context.Background()

	ev := a.EvaluateTurn(ctx, "u1", "How does caching work?", "Caching keeps recent results in memory so repeated requests skip the slow path.", time.Second)
	require.False(t, ev.Degraded)

	p := a.Store().GetProfile(ctx, "u1")
	assert.Equal(t, 1, p.QualityMetrics.EvaluationCount)
	assert.InDelta(t, ev.OverallQualityScore, p.QualityMetrics.AverageOverallQuality, 1e-9)
}

func TestQualityReport_RequiresUserID(t *testing.T) {
	a := newTestAgent(t, Options{})
	_, err := a.QualityReport(context.Background(), " ")
	require.ErrorIs(t, err, memory.ErrEmptyUserID)
}

func TestQualityReport_IncludesCategoryDistribution(t *testing.T) {
	journal, err := evallog.Open(filepath.Join(t.TempDir(), "evaluations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	a := newTestAgent(t, Options{Journal: journal})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := a.ProcessTurn(ctx, "u1", "Could you explain how the scheduler works?")
		require.NoError(t, err)
		a.EvaluateTurn(ctx, "u1", "Could you explain how the scheduler works?", res.ResponseText, time.Second)
	}

	report, err := a.QualityReport(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.EvaluationCount)
	assert.Equal(t, 3, report.ConversationCount)

	total := 0
	for _, n := range report.CategoryDistribution {
		total += n
	}
	assert.Equal(t, 3, total)

	metrics, err := journal.ListMetrics(ctx, "turn.latency_ms", 10)
	require.NoError(t, err)
	assert.Len(t, metrics, 3)
}

func TestQualityReport_WithoutJournal(t *testing.T) {
	a := newTestAgent(t, Options{})
	report, err := a.QualityReport(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, report.CategoryDistribution)
	assert.Contains(t, report.Recommendations, evaluation.RecommendMoreData)
}

func TestRun_RequiresBus(t *testing.T) {
	a := newTestAgent(t, Options{})
	require.Error(t, a.Run(context.Background()))
}

func TestRun_PreservesPerUserOrder(t *testing.T) {
	mb := bus.NewMessageBus()
	a := newTestAgent(t, Options{Bus: mb})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	const perUser = 5
	users := []string{"alice", "bob"}
	for i := 0; i < perUser; i++ {
		for _, u := range users {
			mb.PublishInbound(ctx, bus.TurnRequest{
				ID:      u + "-" + string(rune('0'+i)),
				Source:  "test",
				UserID:  u,
				Message: "tell me about topic " + string(rune('a'+i)),
			})
		}
	}

	seen := map[string][]string{}
	for n := 0; n < perUser*len(users); n++ {
		res, ok := mb.SubscribeOutbound(ctx)
		require.True(t, ok)
		require.Empty(t, res.Error)
		require.NotNil(t, res.Evaluation)
		seen[res.UserID] = append(seen[res.UserID], res.RequestID)
	}
	cancel()
	require.NoError(t, <-done)

	for _, u := range users {
		require.Len(t, seen[u], perUser)
		for i, id := range seen[u] {
			assert.Equal(t, u+"-"+string(rune('0'+i)), id)
		}
		assert.Equal(t, perUser, a.Store().GetProfile(context.Background(), u).ConversationCount)
	}
}

func TestRun_StalledUserDoesNotBlockOthers(t *testing.T) {
	mb := bus.NewMessageBus()
	release := make(chan struct{})
	a := newTestAgent(t, Options{Bus: mb, Responder: stallingResponder{user: "slow", release: release}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	const stalled = 40
	for i := 0; i < stalled; i++ {
		require.True(t, mb.PublishInbound(ctx, bus.TurnRequest{
			ID:      fmt.Sprintf("slow-%d", i),
			Source:  "test",
			UserID:  "slow",
			Message: "are you there?",
		}))
	}
	require.True(t, mb.PublishInbound(ctx, bus.TurnRequest{ID: "fast-0", Source: "test", UserID: "fast", Message: "hello"}))

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	res, ok := mb.SubscribeOutbound(waitCtx)
	waitCancel()
	require.True(t, ok, "user fast got no answer while user slow was stalled")
	assert.Equal(t, "fast-0", res.RequestID)

	close(release)
	for i := 0; i < stalled; i++ {
		res, ok := mb.SubscribeOutbound(ctx)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("slow-%d", i), res.RequestID)
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRun_IdleUserWorkersExit(t *testing.T) {
	mb := bus.NewMessageBus()
	a := newTestAgent(t, Options{Bus: mb})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	const n = 5
	for i := 0; i < n; i++ {
		require.True(t, mb.PublishInbound(ctx, bus.TurnRequest{
			ID:      fmt.Sprintf("req-%d", i),
			Source:  "test",
			Message: "hi there",
		}))
	}
	users := map[string]struct{}{}
	for i := 0; i < n; i++ {
		res, ok := mb.SubscribeOutbound(ctx)
		require.True(t, ok)
		assert.True(t, isAnonymous(res.UserID), res.UserID)
		users[res.UserID] = struct{}{}
	}
	assert.Len(t, users, n)

	require.Eventually(t, func() bool { return a.activeUsers.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestHandleRequest_EvaluateOnly(t *testing.T) {
	a := newTestAgent(t, Options{})
	ctx := context.Background()

	out := a.HandleRequest(ctx, bus.TurnRequest{
		ID:       "r1",
		UserID:   "u1",
		Message:  "What is a mutex?",
		Response: "A mutex lets one goroutine at a time into a critical section.",
		Latency:  2 * time.Second,
	})
	require.NotNil(t, out.Evaluation)
	assert.Equal(t, "r1", out.RequestID)
	assert.Equal(t, 1.0, out.Evaluation.ResponseTimeScore)
	assert.Empty(t, out.Deltas)

	p := a.Store().GetProfile(ctx, "u1")
	assert.Equal(t, 0, p.ConversationCount, "evaluate-only requests do not adapt")
	assert.Equal(t, 1, p.QualityMetrics.EvaluationCount)
}

func TestHandleRequest_EmptyMessageReportsError(t *testing.T) {
	a := newTestAgent(t, Options{})
	out := a.HandleRequest(context.Background(), bus.TurnRequest{ID: "r1", UserID: "u1"})
	assert.Equal(t, ErrEmptyMessage.Error(), out.Error)
	assert.Nil(t, out.Evaluation)
}
