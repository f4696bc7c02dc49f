package phase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/store/memstore"
)

func newManager(t *testing.T) (*phase.Manager, string) {
	t.Helper()
	s := memstore.New()
	id := "j1"
	if err := s.Add(context.Background(), &job.Job{ID: id, Phase: job.Pending}); err != nil {
		t.Fatal(err)
	}
	return phase.NewManager(s), id
}

func TestTransitionLegal(t *testing.T) {
	m, id := newManager(t)
	updated, err := m.Transition(context.Background(), id, job.Queued, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Phase != job.Queued {
		t.Fatalf("expected Queued, got %v", updated.Phase)
	}
}

func TestTransitionIllegal(t *testing.T) {
	m, id := newManager(t)
	if _, err := m.Transition(context.Background(), id, job.Completed, nil); !errors.Is(err, errs.ErrBadPhaseTransition) {
		t.Fatalf("expected ErrBadPhaseTransition, got %v", err)
	}
}

func TestAwaitPhaseChangeWakesOnTransition(t *testing.T) {
	m, id := newManager(t)
	woke := make(chan job.Phase, 1)
	go func() {
		p, timedOut, err := m.AwaitPhaseChange(context.Background(), id, job.Pending, 2*time.Second)
		if err != nil {
			t.Error(err)
			return
		}
		if timedOut {
			t.Error("expected a real change, not a timeout")
			return
		}
		woke <- p
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := m.Transition(context.Background(), id, job.Queued, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-woke:
		if p != job.Queued {
			t.Fatalf("expected Queued, got %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitPhaseChange did not wake up")
	}
}

func TestAwaitPhaseChangeTimesOut(t *testing.T) {
	m, id := newManager(t)
	p, timedOut, err := m.AwaitPhaseChange(context.Background(), id, job.Pending, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !timedOut {
		t.Fatal("expected timeout")
	}
	if p != job.Pending {
		t.Fatalf("expected phase unchanged, got %v", p)
	}
}
