package eventbus

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

func TestPublishOrdersSpecificBeforeWildcard(t *testing.T) {
	bus := New(zaptest.NewLogger(t))
	var got []string
	bus.SubscribeAll(func(Event) { got = append(got, "all") })
	bus.Subscribe(TypeSessionFinished, func(Event) { got = append(got, "finished") })
	bus.Subscribe(TypeSessionChanged, func(Event) { got = append(got, "changed") })

	bus.Publish(NewSessionFinished("s1", action.FinishEnded, time.Now()))
	want := []string{"finished", "all"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := New(zaptest.NewLogger(t))
	called := false
	bus.Subscribe(TypeResyncRequired, func(Event) { panic("boom") })
	bus.Subscribe(TypeResyncRequired, func(Event) { called = true })

	bus.Publish(NewResyncRequired("s1", "a", "manual", time.Now()))
	if !called {
		t.Fatal("second handler was not called")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)
	id := bus.Subscribe(TypeSessionChanged, func(Event) { t.Fatal("unsubscribed handler called") })
	if !bus.Unsubscribe(id) {
		t.Fatal("unsubscribe = false, want true")
	}
	if bus.Unsubscribe(id) {
		t.Fatal("second unsubscribe = true, want false")
	}
	if n := bus.SubscriptionCount(); n != 0 {
		t.Fatalf("subscription count = %d, want 0", n)
	}
	bus.Publish(NewSessionChanged("s1", nil))
}

func TestFromActions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evaluated, err := action.New("s1", "b", "", action.ResponseEvaluated{Round: 1, ResponderID: "a", EvaluatorID: "b"}, now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	evaluated.Seq = 4
	finished, err := action.New("s1", "b", "", action.SessionFinished{Reason: action.FinishTargetReached}, now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	finished.Seq = 5

	events := FromActions("s1", []action.Action{evaluated, finished})
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	changed, ok := events[0].(SessionChanged)
	if !ok || changed.LastSeq != 5 {
		t.Fatalf("first event = %#v", events[0])
	}
	if events[1].EventType() != TypeEvaluationReceived || events[2].EventType() != TypeSessionFinished {
		t.Fatalf("event types = %s, %s", events[1].EventType(), events[2].EventType())
	}
	if FromActions("s1", nil) != nil {
		t.Fatal("no actions should produce no events")
	}
}
