package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/procedures"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

type fakeReconciler struct {
	calls chan string
	mu    sync.Mutex
	errs  map[string]error
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{calls: make(chan string, 64), errs: make(map[string]error)}
}

func (f *fakeReconciler) Reconcile(_ context.Context, sessionID string) (procedures.Reconciliation, error) {
	f.mu.Lock()
	err := f.errs[sessionID]
	f.mu.Unlock()
	f.calls <- sessionID
	return procedures.Reconciliation{}, err
}

type fakeLister struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeLister) ListActiveSessionIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...), nil
}

func (f *fakeLister) set(ids ...string) {
	f.mu.Lock()
	f.ids = ids
	f.mu.Unlock()
}

func waitCall(t *testing.T, calls <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-calls:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reconcile of %s", want)
		}
	}
}

func runWatchdog(t *testing.T, w *Watchdog) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run = %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("watchdog did not stop")
		}
	}
}

func TestArmRestartsInsteadOfStacking(t *testing.T) {
	defer goleak.VerifyNone(t)
	w := New(newFakeReconciler(), nil, WithInterval(time.Hour))
	for i := 0; i < 5; i++ {
		w.Arm("s1")
	}
	w.Arm("s2")
	if got := w.Tracked(); got != 2 {
		t.Fatalf("tracked = %d, want 2", got)
	}
	w.Forget("s1")
	if got := w.Tracked(); got != 1 {
		t.Fatalf("tracked after forget = %d, want 1", got)
	}
	w.stop()
	if got := w.Tracked(); got != 0 {
		t.Fatalf("tracked after stop = %d, want 0", got)
	}
	w.Arm("s3")
	if got := w.Tracked(); got != 0 {
		t.Fatalf("arm after stop tracked = %d, want 0", got)
	}
}

func TestRunReconcilesArmedSessionRepeatedly(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newFakeReconciler()
	w := New(rec, nil, WithInterval(10*time.Millisecond), WithSweepInterval(time.Hour))
	stop := runWatchdog(t, w)

	w.Arm("s1")
	waitCall(t, rec.calls, "s1")
	waitCall(t, rec.calls, "s1")
	stop()

	if got := w.Tracked(); got != 0 {
		t.Fatalf("tracked after run = %d, want 0", got)
	}
}

func TestSweepArmsActiveAndDropsEnded(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newFakeReconciler()
	lister := &fakeLister{}
	lister.set("s1", "s2")
	w := New(rec, lister, WithInterval(time.Hour), WithSweepInterval(time.Hour))

	w.sweep(context.Background())
	if got := w.Tracked(); got != 2 {
		t.Fatalf("tracked = %d, want 2", got)
	}
	lister.set("s2")
	w.sweep(context.Background())
	if got := w.Tracked(); got != 1 {
		t.Fatalf("tracked after sweep = %d, want 1", got)
	}
	w.stop()
}

func TestMissingSessionIsForgotten(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newFakeReconciler()
	rec.errs["gone"] = storage.ErrNotFound
	rec.errs["flaky"] = errors.New("database is locked")
	w := New(rec, nil, WithInterval(time.Hour))

	w.Arm("gone")
	w.Arm("flaky")
	if keep := w.reconcile(context.Background(), "gone"); keep {
		t.Fatal("missing session kept armed")
	}
	if keep := w.reconcile(context.Background(), "flaky"); !keep {
		t.Fatal("failing session dropped")
	}
	if got := w.Tracked(); got != 1 {
		t.Fatalf("tracked = %d, want 1", got)
	}
	w.stop()
}

func TestAttachFollowsSessionEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := eventbus.New(nil)
	w := New(newFakeReconciler(), nil, WithInterval(time.Hour))
	detach := w.Attach(bus)

	bus.Publish(eventbus.NewSessionChanged("s1", nil))
	if got := w.Tracked(); got != 1 {
		t.Fatalf("tracked after change = %d, want 1", got)
	}
	bus.Publish(eventbus.NewSessionFinished("s1", action.FinishEnded, time.Now()))
	if got := w.Tracked(); got != 0 {
		t.Fatalf("tracked after finish = %d, want 0", got)
	}

	detach()
	bus.Publish(eventbus.NewSessionChanged("s2", nil))
	if got := w.Tracked(); got != 0 {
		t.Fatalf("tracked after detach = %d, want 0", got)
	}
	w.stop()
}
