package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
)

// turnQueue holds one user's pending requests. It is unbounded so that a
// user stalled in storage never holds up the dispatcher.
type turnQueue struct {
	pending []bus.TurnRequest
}

// dispatcher runs at most one drain goroutine per user. A drain goroutine
// removes its queue and exits once the queue is empty.
type dispatcher struct {
	agent *Agent
	ctx   context.Context

	mu     sync.Mutex
	queues map[string]*turnQueue
	wg     sync.WaitGroup
}

// Run consumes turn requests from the bus until ctx is done or the bus is
// closed. A user's turns are handled in arrival order while different users
// proceed concurrently.
func (a *Agent) Run(ctx context.Context) error {
	if a.bus == nil {
		return errors.New("agent: no message bus configured")
	}
	d := &dispatcher{agent: a, ctx: ctx, queues: map[string]*turnQueue{}}
	logger.InfoC("agent", "Gateway started")
	defer logger.InfoC("agent", "Gateway stopped")
	defer d.wg.Wait()

	for {
		req, ok := a.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		req.UserID = requestUserID(req.UserID, req.Source, req.ID)
		d.enqueue(req)
	}
}

func (d *dispatcher) enqueue(req bus.TurnRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[req.UserID]
	if !ok {
		q = &turnQueue{}
		d.queues[req.UserID] = q
		d.wg.Add(1)
		d.agent.activeUsers.Add(1)
		go d.drain(req.UserID, q)
	}
	q.pending = append(q.pending, req)
}

func (d *dispatcher) drain(userID string, q *turnQueue) {
	defer d.wg.Done()
	defer d.agent.activeUsers.Add(-1)
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending[0] = bus.TurnRequest{}
		q.pending = q.pending[1:]
		d.mu.Unlock()

		if d.ctx.Err() != nil {
			continue
		}
		d.agent.bus.PublishOutbound(d.agent.HandleRequest(d.ctx, req))
	}
}

// HandleRequest runs one bus request. A request that carries a response is
// only evaluated.
func (a *Agent) HandleRequest(ctx context.Context, req bus.TurnRequest) bus.TurnResult {
	out := bus.TurnResult{RequestID: req.ID, Source: req.Source, UserID: req.UserID}

	if req.Response != "" {
		ev := a.EvaluateTurn(ctx, req.UserID, req.Message, req.Response, req.Latency)
		out.TurnID = ev.ID
		out.ResponseText = req.Response
		out.Vector = a.store.GetProfile(ctx, req.UserID).PersonalityVector
		out.Evaluation = &ev
		out.Degraded = ev.Degraded
		return out
	}

	started := time.Now()
	turn, err := a.ProcessTurn(ctx, req.UserID, req.Message)
	if err != nil {
		logger.WarnCF("agent", "Turn rejected", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		out.Error = err.Error()
		return out
	}
	ev := a.EvaluateTurn(ctx, turn.UserID, req.Message, turn.ResponseText, time.Since(started))

	out.TurnID = turn.TurnID
	out.UserID = turn.UserID
	out.ResponseText = turn.ResponseText
	out.Deltas = turn.Deltas
	out.Vector = turn.Vector
	out.Evaluation = &ev
	out.Degraded = turn.Degraded || ev.Degraded
	return out
}
