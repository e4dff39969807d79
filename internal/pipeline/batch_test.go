package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/user/chatpilot/internal/types"
)

func batchFixture() (*fakeTransport, *fakeInsight, *memStore) {
	chats := []string{"a@s.whatsapp.net", "b@s.whatsapp.net", "c@s.whatsapp.net"}
	tr := &fakeTransport{msgs: map[string][]*types.MessageRecord{}}
	for _, id := range chats {
		tr.chats = append(tr.chats, types.ChatHandle{ChatID: id, Name: strings.ToUpper(id[:1])})
		tr.msgs[id] = conversation(id, 6)
	}
	return tr, newFakeInsight(), newMemStore()
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	tr, ins, st := batchFixture()
	ins.analyzeErr["b@s.whatsapp.net"] = errBoom
	sink := &recordingSink{}
	o := newTestOrchestrator(t, tr, ins, st, WithEvents(sink))

	items, err := o.RunBatch(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	for _, i := range []int{0, 2} {
		it := items[i]
		if it.Error != "" {
			t.Errorf("item %d: unexpected error %q", i, it.Error)
		}
		if it.Ingested != 6 || it.Analysis == nil || !it.Analysis.Completed() {
			t.Errorf("item %d: expected completed analysis, got %+v", i, it)
		}
		if it.Suggestion == nil || it.Suggestion.Suggestion == nil {
			t.Errorf("item %d: expected suggestion, got %+v", i, it.Suggestion)
		}
	}

	failed := items[1]
	if failed.Contact != "b@s.whatsapp.net" || failed.Name != "B" {
		t.Errorf("unexpected failed item identity %+v", failed)
	}
	if !strings.Contains(failed.Error, "provider unavailable") {
		t.Errorf("expected provider error recorded, got %q", failed.Error)
	}
	if failed.Suggestion != nil {
		t.Error("suggest must not run after a failed analysis")
	}

	if ins.count("suggest") != 2 {
		t.Errorf("expected 2 suggestions, got %d", ins.count("suggest"))
	}
	if len(sink.ofType(EventBatchCompleted)) != 1 {
		t.Error("expected batch event")
	}
}

func TestRunBatchRespectsLimit(t *testing.T) {
	tr, ins, st := batchFixture()
	o := newTestOrchestrator(t, tr, ins, st)

	items, err := o.RunBatch(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Contact != "a@s.whatsapp.net" {
		t.Errorf("expected only the most recent chat, got %+v", items)
	}
}

func TestRunBatchRecordsPreconditions(t *testing.T) {
	tr := &fakeTransport{
		chats: []types.ChatHandle{{ChatID: "empty@s.whatsapp.net"}},
		msgs:  map[string][]*types.MessageRecord{},
	}
	ins := newFakeInsight()
	o := newTestOrchestrator(t, tr, ins, newMemStore())

	items, err := o.RunBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	it := items[0]
	if it.Error != "" {
		t.Errorf("preconditions are not failures, got %q", it.Error)
	}
	if !errors.Is(it.Analysis.Unmet, ErrNoMessages) || !errors.Is(it.Suggestion.Unmet, ErrNoAnalysis) {
		t.Errorf("expected precondition outcomes, got %+v / %+v", it.Analysis.Outcome, it.Suggestion.Outcome)
	}
	if ins.total() != 0 {
		t.Errorf("expected no provider calls, got %d", ins.total())
	}
}

func TestRunBatchListFailure(t *testing.T) {
	tr := &fakeTransport{listErr: errors.New("bridge down")}
	o := newTestOrchestrator(t, tr, newFakeInsight(), newMemStore())

	if _, err := o.RunBatch(context.Background(), 3); err == nil {
		t.Fatal("expected list failure to fail the batch")
	}
}
