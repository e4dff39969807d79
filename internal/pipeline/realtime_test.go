package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/chatpilot/internal/types"
)

func TestRealtimeStartIsIdempotent(t *testing.T) {
	r := newRealtime(time.Hour, func(ctx context.Context) {})

	if !r.Start(context.Background()) {
		t.Fatal("expected first start to arm the loop")
	}
	if r.Start(context.Background()) {
		t.Error("expected second start to be a no-op")
	}
	if n := r.entries(); n != 1 {
		t.Errorf("expected exactly one scheduled tick, got %d", n)
	}
	if !r.IsRunning() {
		t.Error("expected running")
	}
	if st := r.Status(); !st.Running || st.NextTick.IsZero() {
		t.Errorf("unexpected status %+v", st)
	}

	if !r.Stop() {
		t.Error("expected stop to stop the loop")
	}
	if r.Stop() {
		t.Error("expected second stop to be a no-op")
	}
	if r.IsRunning() || r.entries() != 0 {
		t.Error("expected stopped")
	}
}

func TestRealtimeTicksIngest(t *testing.T) {
	tr := &fakeTransport{
		chats: []types.ChatHandle{{ChatID: ana}},
		msgs:  map[string][]*types.MessageRecord{ana: conversation(ana, 5)},
	}
	st := newMemStore()
	cfg := DefaultConfig()
	cfg.RealtimeInterval = time.Second
	cfg.RealtimeMessageLimit = 2
	o := newTestOrchestrator(t, tr, newFakeInsight(), st, WithConfig(cfg))

	o.Realtime().Start(context.Background())
	defer o.Realtime().Stop()

	deadline := time.Now().Add(3 * time.Second)
	for tr.listCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	o.Realtime().Stop()
	if tr.listCalls() == 0 {
		t.Fatal("expected at least one tick")
	}

	time.Sleep(100 * time.Millisecond)
	msgs, _ := st.GetMessages(context.Background(), ana, 0)
	if len(msgs) != 2 {
		t.Errorf("expected 2 ingested messages, got %d", len(msgs))
	}
}

func TestSyncTickListFailure(t *testing.T) {
	tr := &fakeTransport{listErr: errors.New("bridge down")}
	st := newMemStore()
	sink := &recordingSink{}
	o := newTestOrchestrator(t, tr, newFakeInsight(), st, WithEvents(sink))

	o.syncTick(context.Background())
	if st.writeCount() != 0 || len(sink.ofType(EventRealtimeTick)) != 0 {
		t.Error("a failed listing must abort the tick")
	}
}

func TestSyncTickIsolatesChatFailures(t *testing.T) {
	tr := &fakeTransport{
		chats:   []types.ChatHandle{{ChatID: "a@s.whatsapp.net"}, {ChatID: "b@s.whatsapp.net"}},
		msgs:    map[string][]*types.MessageRecord{"b@s.whatsapp.net": conversation("b@s.whatsapp.net", 3)},
		readErr: map[string]error{"a@s.whatsapp.net": errors.New("timeout")},
	}
	st := newMemStore()
	sink := &recordingSink{}
	o := newTestOrchestrator(t, tr, newFakeInsight(), st, WithEvents(sink))

	o.syncTick(context.Background())

	msgs, _ := st.GetMessages(context.Background(), "b@s.whatsapp.net", 0)
	if len(msgs) != 3 {
		t.Errorf("expected chat b ingested, got %d", len(msgs))
	}
	events := sink.ofType(EventRealtimeTick)
	if len(events) != 1 {
		t.Fatalf("expected one tick event, got %d", len(events))
	}
	sum := events[0].Data.(TickSummary)
	if sum.Chats != 2 || sum.Messages != 3 || sum.Failed != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestStopLeavesRunningTickAlone(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	finished := make(chan error, 1)

	r := newRealtime(time.Second, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
			return
		}
		<-release
		finished <- ctx.Err()
	})
	r.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("tick never started")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop waited for the running tick")
	}

	close(release)
	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("running tick must not be cancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("tick did not finish")
	}
}

func TestRestartDoesNotOverlapRunningTick(t *testing.T) {
	var active, peak, entered atomic.Int32
	release := make(chan struct{})

	r := newRealtime(time.Second, func(ctx context.Context) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if entered.Add(1) == 1 {
			<-release
		}
	})
	defer r.Stop()

	r.Start(context.Background())
	deadline := time.Now().Add(3 * time.Second)
	for entered.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if entered.Load() == 0 {
		t.Fatal("tick never started")
	}

	r.Stop()
	r.Start(context.Background())

	// The restarted loop comes due while the first tick is still blocked.
	time.Sleep(1500 * time.Millisecond)
	if n := entered.Load(); n != 1 {
		t.Errorf("expected restarted loop to skip while a tick runs, got %d ticks", n)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("expected at most one concurrent tick, got %d", p)
	}

	close(release)
	deadline = time.Now().Add(3 * time.Second)
	for entered.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if entered.Load() < 2 {
		t.Error("expected ticks to resume once the running tick finished")
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("expected at most one concurrent tick, got %d", p)
	}
}
