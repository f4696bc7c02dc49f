package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/dispatch"
	"github.com/gotap/tapd/destruct"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/scheduler"
	"github.com/gotap/tapd/store/memstore"
	"github.com/gotap/tapd/worker"
)

// fakeRows/fakeConn/fakePool mirror pipeline_test.go's in-memory
// connpool.ConnectionPool stand-in, reused here to drive the dispatcher
// end to end without a real database.
type fakeRows struct {
	n   int
	cur int
}

func (r *fakeRows) Columns() ([]string, error) { return []string{"n"}, nil }
func (r *fakeRows) Next() bool {
	if r.cur >= r.n {
		return false
	}
	r.cur++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*any)) = r.cur
	return nil
}
func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeConn struct{ n int }

func (c *fakeConn) QueryContext(context.Context, string, ...any) (connpool.Rows, error) {
	return &fakeRows{n: c.n}, nil
}

type fakePool struct {
	n      int
	notify chan struct{}
}

func newFakePool(n int) *fakePool {
	return &fakePool{n: n, notify: make(chan struct{}, 1)}
}

func (p *fakePool) Acquire(context.Context, string) (connpool.Conn, error) {
	return &fakeConn{n: p.n}, nil
}
func (p *fakePool) Release(connpool.Conn) {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
func (p *fakePool) FreeCount() int           { return 1 }
func (p *fakePool) Notify() <-chan struct{}  { return p.notify }

// testServer assembles a full in-process dispatcher over a memstore
// backend and fake connection pool, the same collaborator set cmd/tapd
// wires against a real database.
func testServer(t *testing.T, totalRows int) (*httptest.Server, func()) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	st := memstore.New()
	phases := phase.NewManager(st)

	pipe := &pipeline.Pipeline{
		Parser:       pipeline.Recognizer{},
		Translator:   pipeline.SQLTranslator{},
		Metadata:     pipeline.NewStaticMetadata(nil),
		Pool:         newFakePool(totalRows),
		ServerMaxRec: 1000,
		Log:          log,
	}
	pipe.RegisterFormatter(pipeline.CSVFormatter{})
	pipe.RegisterFormatter(pipeline.VOTableFormatter{})

	resultsDir := t.TempDir()
	sink, err := dispatch.NewFileResultSink(resultsDir)
	if err != nil {
		t.Fatal(err)
	}

	jobThread := worker.NewJobThread(pipe, phases, st, sink, log)
	sched := scheduler.NewManager(pipe.Pool, jobThread.Run, 1, log)

	destructSched := destruct.New(st, pipe.Metadata, jobThread, sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	if err := destructSched.Start(ctx); err != nil {
		t.Fatal(err)
	}

	rt := &dispatch.Router{
		Store:                      st,
		Phases:                     phases,
		Scheduler:                  sched,
		Worker:                     jobThread,
		Destruct:                   destructSched,
		Pipeline:                   pipe,
		Metadata:                   pipe.Metadata,
		Results:                    sink,
		IDs:                        dispatch.NewIDGeneratorWithPrefix("t"),
		Identify:                   dispatch.NewHeaderIdentifier(""),
		DefaultDestructionLifetime: time.Hour,
		Log:                        log,
	}
	mux := dispatch.NewRouter(rt)
	srv := httptest.NewServer(mux)

	return srv, func() {
		srv.Close()
		cancel()
		<-sched.Stop()
		destructSched.Stop(time.Second)
	}
}

// TestSyncHappyPath covers spec.md §8 scenario S1.
func TestSyncHappyPath(t *testing.T) {
	srv, teardown := testServer(t, 1)
	defer teardown()

	resp, err := http.PostForm(srv.URL+"/sync", url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"QUERY":   {"SELECT n FROM tbl"},
		"FORMAT":  {"csv"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty body")
	}
}

// TestAsyncHappyPath covers spec.md §8 scenario S2: submit, RUN, block
// on phase until COMPLETED, then fetch the result.
func TestAsyncHappyPath(t *testing.T) {
	srv, teardown := testServer(t, 3)
	defer teardown()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.PostForm(srv.URL+"/async", url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"QUERY":   {"SELECT TOP 3 n FROM tbl"},
		"FORMAT":  {"votable"},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.Contains(loc, "/async/") {
		t.Fatalf("expected job location under /async/, got %q", loc)
	}

	resp, err = client.PostForm(srv.URL+loc+"/phase", url.Values{"PHASE": {"RUN"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303 from PHASE=RUN, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	var phaseName string
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + loc + "/phase?WAIT=2")
		if err != nil {
			t.Fatal(err)
		}
		var doc struct {
			Phase string `json:"phase"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		phaseName = doc.Phase
		if phaseName == "COMPLETED" || phaseName == "ERROR" || phaseName == "ABORTED" {
			break
		}
	}
	if phaseName != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %q", phaseName)
	}

	resp, err = http.Get(srv.URL + loc + "/results/result")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching result, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty result body")
	}
}
