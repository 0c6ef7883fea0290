package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishInbound_DropsWhenFull(t *testing.T) {
	mb := NewMessageBusSize(3)
	defer mb.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !mb.PublishInbound(ctx, TurnRequest{UserID: "u", Message: "msg"}) {
			t.Fatalf("request %d should be accepted", i)
		}
	}
	if mb.PublishInbound(ctx, TurnRequest{UserID: "u", Message: "overflow"}) {
		t.Fatalf("overflow request should be dropped")
	}

	st := mb.Stats()
	if st.Accepted != 3 || st.DroppedInbound != 1 || st.QueuedInbound != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPublishInbound_CanceledContextGivesUpEarly(t *testing.T) {
	mb := NewMessageBusSize(1)
	defer mb.Close()
	mb.PublishInbound(context.Background(), TurnRequest{UserID: "u"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	started := time.Now()
	if mb.PublishInbound(ctx, TurnRequest{UserID: "u"}) {
		t.Fatalf("expected drop on canceled context")
	}
	if time.Since(started) >= publishTimeout {
		t.Fatalf("publish waited for the full timeout despite cancellation")
	}
}

func TestPublishOutbound_CountsAnswers(t *testing.T) {
	mb := NewMessageBusSize(2)
	defer mb.Close()

	mb.PublishOutbound(TurnResult{Source: "test", ResponseText: "a"})
	mb.PublishOutbound(TurnResult{Source: "test", ResponseText: "b"})
	mb.PublishOutbound(TurnResult{Source: "test", ResponseText: "overflow"})

	st := mb.Stats()
	if st.Answered != 2 || st.DroppedOutbound != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestClosedBus(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatalf("expected closed outbound subscribe to return ok=false")
	}
	if mb.PublishInbound(context.Background(), TurnRequest{UserID: "u"}) {
		t.Fatalf("publish after close should be rejected")
	}
	mb.Close()
}

func TestConsumeInbound_HonorsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatalf("expected timeout to return ok=false")
	}
}

func TestDispatchBySource(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	var got []TurnResult
	mb.RegisterHandler("stdio", func(r TurnResult) { got = append(got, r) })

	if !mb.Dispatch(TurnResult{Source: "stdio", TurnID: "t1"}) {
		t.Fatalf("expected stdio handler to be found")
	}
	if mb.Dispatch(TurnResult{Source: "discord", TurnID: "t2"}) {
		t.Fatalf("expected no handler for unknown source")
	}
	if len(got) != 1 || got[0].TurnID != "t1" {
		t.Fatalf("unexpected dispatched results: %#v", got)
	}
}
