package backup_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/gotap/tapd/backup"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/store/memstore"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqldb.Close() })
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := backup.InitDB(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestSaveAllAndRestoreAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	live := memstore.New()
	for _, j := range []*job.Job{
		{ID: "j1", Owner: "alice", Phase: job.Pending, DestructionTime: time.Now().Add(time.Hour)},
		{ID: "j2", Owner: "bob", Phase: job.Completed, DestructionTime: time.Now().Add(time.Hour)},
	} {
		if err := live.Add(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	b := backup.New(live, db)
	if err := b.SaveAll(ctx); err != nil {
		t.Fatal(err)
	}

	restored := memstore.New()
	b2 := backup.New(restored, db)
	report, err := b2.RestoreAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Jobs != 2 || report.JobsRestored != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Users != 2 || report.UsersRestored != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Malformed() {
		t.Fatal("expected a well-formed report")
	}

	got, err := restored.Get(ctx, "", "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "alice" || got.Phase != job.Pending {
		t.Fatalf("unexpected restored job: %+v", got)
	}
}

func TestSaveOwnerOnlyReplacesThatOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	live := memstore.New()
	alice := &job.Job{ID: "j1", Owner: "alice", Phase: job.Pending, DestructionTime: time.Now().Add(time.Hour)}
	if err := live.Add(ctx, alice); err != nil {
		t.Fatal(err)
	}
	b := backup.New(live, db)
	if err := b.SaveOwner(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	restored := memstore.New()
	b2 := backup.New(restored, db)
	report, err := b2.RestoreAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Jobs != 1 {
		t.Fatalf("expected 1 job, got %+v", report)
	}
}

func TestGuardDisablesAfterMalformedReport(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	live := memstore.New()
	b := backup.New(live, db)
	g := backup.NewGuard(b)

	g.CheckRestore(backup.RestoreReport{Jobs: 2, JobsRestored: 3})

	if err := g.SaveAll(ctx); err == nil {
		t.Fatal("expected SaveAll to be disabled after a malformed restore report")
	}
}
