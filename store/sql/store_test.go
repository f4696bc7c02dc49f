package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"database/sql"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	sqlstore "github.com/gotap/tapd/store/sql"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqldb.Close() })
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := sqlstore.InitDB(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestStoreAddGetRemove(t *testing.T) {
	db := newTestDB(t)
	s := sqlstore.New(db)
	ctx := context.Background()

	j := &job.Job{
		ID:              "j1",
		Owner:           "alice",
		Phase:           job.Pending,
		CreationTime:    time.Now(),
		DestructionTime: time.Now().Add(24 * time.Hour),
	}
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
	if got.ID != "j1" || got.Phase != job.Pending {
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

func TestStoreCompareAndTransition(t *testing.T) {
	db := newTestDB(t)
	s := sqlstore.New(db)
	ctx := context.Background()

	j := &job.Job{ID: "j1", Phase: job.Pending, CreationTime: time.Now()}
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

	now := time.Now()
	updated, err = s.CompareAndTransition(ctx, "j1", job.Queued, job.Executing, func(j *job.Job) {
		j.StartTime = &now
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.StartTime == nil || !updated.StartTime.Equal(now) {
		t.Fatalf("expected StartTime to be stamped, got %+v", updated.StartTime)
	}
}

func TestStoreSetParamsRejectedAfterQueued(t *testing.T) {
	db := newTestDB(t)
	s := sqlstore.New(db)
	ctx := context.Background()

	j := &job.Job{ID: "j1", Phase: job.Pending, CreationTime: time.Now()}
	if err := s.Add(ctx, j); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetParams(ctx, "j1", func(j *job.Job) { j.Params.Query = "SELECT 1" }); err != nil {
		t.Fatal(err)
	}

	if _, err := s.CompareAndTransition(ctx, "j1", job.Pending, job.Queued, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetParams(ctx, "j1", func(j *job.Job) { j.Params.Query = "SELECT 2" }); !errors.Is(err, errs.ErrBadPhaseTransition) {
		t.Fatalf("expected ErrBadPhaseTransition, got %v", err)
	}
}

func TestStoreIterateOrdersByCreationTime(t *testing.T) {
	db := newTestDB(t)
	s := sqlstore.New(db)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		j := &job.Job{
			ID:           id,
			Owner:        "alice",
			CreationTime: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Add(ctx, j); err != nil {
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
