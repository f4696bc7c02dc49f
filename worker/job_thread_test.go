package worker_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/param"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/store/memstore"
	"github.com/gotap/tapd/worker"
)

type slowRows struct {
	delay time.Duration
	done  bool
}

func (r *slowRows) Columns() ([]string, error) { return []string{"n"}, nil }
func (r *slowRows) Next() bool {
	if r.done {
		return false
	}
	time.Sleep(r.delay)
	r.done = true
	return true
}
func (r *slowRows) Scan(dest ...any) error { *(dest[0].(*any)) = 1; return nil }
func (r *slowRows) Err() error             { return nil }
func (r *slowRows) Close() error           { return nil }

type fakeConn struct{ rows connpool.Rows }

func (c *fakeConn) QueryContext(context.Context, string, ...any) (connpool.Rows, error) {
	return c.rows, nil
}

type fakePool struct{ conn *fakeConn }

func (p *fakePool) Acquire(context.Context, string) (connpool.Conn, error) { return p.conn, nil }
func (p *fakePool) Release(connpool.Conn)                                  {}
func (p *fakePool) FreeCount() int                                         { return 1 }
func (p *fakePool) Notify() <-chan struct{}                                { return make(chan struct{}) }

func newThread(rows connpool.Rows) (*worker.JobThread, *memstore.Store, *phase.Manager) {
	s := memstore.New()
	phases := phase.NewManager(s)
	p := &pipeline.Pipeline{
		Parser:       pipeline.Recognizer{},
		Translator:   pipeline.SQLTranslator{},
		Metadata:     pipeline.NewStaticMetadata(nil),
		Pool:         &fakePool{conn: &fakeConn{rows: rows}},
		ServerMaxRec: 1000,
		Log:          slog.New(slog.DiscardHandler),
	}
	p.RegisterFormatter(pipeline.CSVFormatter{})
	thread := worker.NewJobThread(p, phases, s, nil, slog.New(slog.DiscardHandler))
	return thread, s, phases
}

func addQueued(t *testing.T, s *memstore.Store, id string, execDuration time.Duration) *job.Job {
	t.Helper()
	j := &job.Job{
		ID:                id,
		Phase:             job.Pending,
		DestructionTime:   time.Now().Add(time.Hour),
		ExecutionDuration: execDuration,
		Params: param.Set{
			Query:  "SELECT n FROM tbl",
			Format: "csv",
			MaxRec: -1,
		},
	}
	if err := s.Add(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	phases := phase.NewManager(s)
	if _, err := phases.Transition(context.Background(), id, job.Queued, nil); err != nil {
		t.Fatal(err)
	}
	return j
}

func waitTerminal(t *testing.T, s *memstore.Store, id string, timeout time.Duration) *job.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		j, err := s.Get(context.Background(), "", id)
		if err != nil {
			t.Fatal(err)
		}
		if j.Phase.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal phase within %s", id, timeout)
	return nil
}

func TestJobThreadHappyPath(t *testing.T) {
	thread, s, _ := newThread(&slowRows{delay: 0})
	addQueued(t, s, "j1", 0)

	done := make(chan struct{})
	ok := thread.Run(context.Background(), "j1", func() { close(done) })
	if !ok {
		t.Fatal("expected Run to hand off the job")
	}
	<-done

	j := waitTerminal(t, s, "j1", time.Second)
	if j.Phase != job.Completed {
		t.Fatalf("expected Completed, got %v", j.Phase)
	}
	if len(j.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(j.Results))
	}
}

func TestJobThreadTimeout(t *testing.T) {
	thread, s, _ := newThread(&slowRows{delay: 200 * time.Millisecond})
	addQueued(t, s, "j2", 10*time.Millisecond)

	done := make(chan struct{})
	if !thread.Run(context.Background(), "j2", func() { close(done) }) {
		t.Fatal("expected Run to hand off the job")
	}
	<-done

	j := waitTerminal(t, s, "j2", time.Second)
	if j.Phase != job.Aborted {
		t.Fatalf("expected Aborted on timeout, got %v", j.Phase)
	}
	if j.ErrorSummary == nil {
		t.Fatal("expected an error summary")
	}
}

func TestJobThreadAbort(t *testing.T) {
	thread, s, _ := newThread(&slowRows{delay: 500 * time.Millisecond})
	addQueued(t, s, "j3", 0)

	done := make(chan struct{})
	if !thread.Run(context.Background(), "j3", func() { close(done) }) {
		t.Fatal("expected Run to hand off the job")
	}

	time.Sleep(20 * time.Millisecond)
	if !thread.Abort("j3") {
		t.Fatal("expected Abort to find the running job")
	}
	<-done

	j := waitTerminal(t, s, "j3", time.Second)
	if j.Phase != job.Aborted {
		t.Fatalf("expected Aborted on client abort, got %v", j.Phase)
	}
}

func TestJobThreadAbortUnknownJob(t *testing.T) {
	thread, _, _ := newThread(&slowRows{})
	if thread.Abort("no-such-job") {
		t.Fatal("expected Abort to report false for an untracked job")
	}
}
