package connpool_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/gotap/tapd/connpool"
)

func TestBunPoolAcquireRelease(t *testing.T) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer sqldb.Close()
	db := bun.NewDB(sqldb, sqlitedialect.New())

	pool := connpool.NewBunPool(db, "test")
	conn, err := pool.Acquire(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := conn.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatal(err)
	}
	if !rows.Next() {
		t.Fatal("expected a row")
	}
	var v int
	if err := rows.Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
	rows.Close()
	pool.Release(conn)

	select {
	case <-pool.Notify():
	default:
		t.Fatal("expected a notify signal after Release")
	}
}
