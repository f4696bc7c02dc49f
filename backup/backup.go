package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/gotap/tapd/store"
)

// Backup mirrors a live store.JobStore into a durable bun-backed
// snapshot table, per spec.md §6's saveAll/saveOwner/restoreAll
// contract.
type Backup struct {
	live store.JobStore
	db   *bun.DB
}

// New wraps db as the durable target for live's jobs. The caller must
// have already run InitDB against db.
func New(live store.JobStore, db *bun.DB) *Backup {
	return &Backup{live: live, db: db}
}

// InitDB creates the backup table if it does not already exist.
func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*row)(nil)).IfNotExists().Exec(ctx)
	return err
}

// SaveAll snapshots every job currently in live, replacing the entire
// backup table contents within one transaction.
func (b *Backup) SaveAll(ctx context.Context) error {
	return b.save(ctx, "")
}

// SaveOwner snapshots every job owned by owner, replacing that owner's
// rows in the backup table within one transaction. Nothing in this
// module calls it after individual mutations: cmd/tapd saves through
// SaveAll on a timer and once at shutdown.
func (b *Backup) SaveOwner(ctx context.Context, owner string) error {
	if owner == "" {
		return fmt.Errorf("backup: SaveOwner requires a non-empty owner; use SaveAll for anonymous/all jobs")
	}
	return b.save(ctx, owner)
}

func (b *Backup) save(ctx context.Context, owner string) error {
	it, err := b.live.Iterate(ctx, owner)
	if err != nil {
		return err
	}
	defer it.Close()

	var rows []*row
	for it.Next(ctx) {
		// Iterate(owner) also yields anonymous jobs; only owner's rows
		// are replaced below, so only owner's jobs are written back.
		if owner != "" && it.Job().Owner != owner {
			continue
		}
		r, err := toRow(it.Job())
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}
	if err := it.Err(); err != nil {
		return err
	}

	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		del := tx.NewDelete().Model((*row)(nil))
		if owner == "" {
			del = del.Where("1 = 1")
		} else {
			del = del.Where("owner = ?", owner)
		}
		if _, err := del.Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

// RestoreReport is the result of RestoreAll, per spec.md §6:
// "restoreAll() -> (nJobsRestored, nJobs, nUsersRestored, nUsers)".
type RestoreReport struct {
	JobsRestored  int
	Jobs          int
	UsersRestored int
	Users         int
}

// Malformed reports whether the report is internally inconsistent
// (more restored than seen, in either dimension) — spec.md §6's trigger
// for disabling the backup feature with a fatal log while the service
// continues.
func (r RestoreReport) Malformed() bool {
	return r.JobsRestored > r.Jobs || r.UsersRestored > r.Users
}

// RestoreAll loads every row from the backup table into live via Add,
// skipping (and counting as seen but not restored) any row whose job id
// already exists in live. It is invoked once during initialization.
func (b *Backup) RestoreAll(ctx context.Context) (RestoreReport, error) {
	var rows []row
	if err := b.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return RestoreReport{}, err
	}

	report := RestoreReport{Jobs: len(rows)}
	owners := make(map[string]bool)
	restoredOwners := make(map[string]bool)

	for _, r := range rows {
		owners[r.Owner] = true
		j, err := r.toJob()
		if err != nil {
			continue // malformed row: seen, not restored
		}
		if err := b.live.Add(ctx, j); err != nil {
			continue // duplicate id or store error: seen, not restored
		}
		report.JobsRestored++
		restoredOwners[r.Owner] = true
	}
	report.Users = len(owners)
	report.UsersRestored = len(restoredOwners)
	return report, nil
}

var errDisabled = errors.New("backup: disabled after malformed restore report")

// Guard wraps b so that a malformed RestoreAll report (spec.md §6)
// permanently disables SaveAll/SaveOwner for the lifetime of the
// process, without the caller needing to thread a boolean through every
// call site. The core continues running with whatever state RestoreAll
// did manage to load.
type Guard struct {
	*Backup
	disabled bool
}

// NewGuard wraps b. Call CheckRestore once, right after RestoreAll.
func NewGuard(b *Backup) *Guard { return &Guard{Backup: b} }

// CheckRestore disables future saves if report is malformed.
func (g *Guard) CheckRestore(report RestoreReport) {
	if report.Malformed() {
		g.disabled = true
	}
}

func (g *Guard) SaveAll(ctx context.Context) error {
	if g.disabled {
		return errDisabled
	}
	return g.Backup.SaveAll(ctx)
}

func (g *Guard) SaveOwner(ctx context.Context, owner string) error {
	if g.disabled {
		return errDisabled
	}
	return g.Backup.SaveOwner(ctx, owner)
}
