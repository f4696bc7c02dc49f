package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/store/memstore"
)

func TestAddGetRemove(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	j := &job.Job{ID: "j1", Owner: "alice", Phase: job.Pending}
	if err := s.Add(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, j); !errors.Is(err, errs.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	got, err := s.Get(ctx, "alice", "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "j1" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if _, err := s.Get(ctx, "bob", "j1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
	if err := s.Remove(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "alice", "j1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestCompareAndTransition(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	j := &job.Job{ID: "j1", Phase: job.Pending}
	if err := s.Add(ctx, j); err != nil {
		t.Fatal(err)
	}
	updated, err := s.CompareAndTransition(ctx, "j1", job.Pending, job.Queued, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Phase != job.Queued {
		t.Fatalf("expected Queued, got %v", updated.Phase)
	}
	if _, err := s.CompareAndTransition(ctx, "j1", job.Pending, job.Aborted, nil); !errors.Is(err, errs.ErrBadPhaseTransition) {
		t.Fatalf("expected ErrBadPhaseTransition, got %v", err)
	}
}

func TestIterateOrdersByInsertion(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(ctx, &job.Job{ID: id, Owner: "alice"}); err != nil {
			t.Fatal(err)
		}
	}
	it, err := s.Iterate(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var order []string
	for it.Next(ctx) {
		order = append(order, it.Job().ID)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestSetParamsRejectedAfterQueued(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	j := &job.Job{ID: "j1", Phase: job.Pending}
	if err := s.Add(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CompareAndTransition(ctx, "j1", job.Pending, job.Queued, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetParams(ctx, "j1", func(j *job.Job) { j.Params.Query = "SELECT 1" }); !errors.Is(err, errs.ErrBadPhaseTransition) {
		t.Fatalf("expected ErrBadPhaseTransition, got %v", err)
	}
}
