package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gotap/tapd/job"
)

func TestRecordSubmission(t *testing.T) {
	initial := testutil.ToFloat64(JobsSubmittedTotal.WithLabelValues("doquery"))
	RecordSubmission("DOQUERY")
	after := testutil.ToFloat64(JobsSubmittedTotal.WithLabelValues("doquery"))
	if after != initial+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", initial, after)
	}
}

func TestRecordTransition(t *testing.T) {
	initial := testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("COMPLETED"))
	RecordTransition(job.Completed)
	after := testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("COMPLETED"))
	if after != initial+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", initial, after)
	}
}

func TestRecordStage(t *testing.T) {
	before := testutil.CollectAndCount(StageDuration)
	RecordStage(job.ExecutingSQL, 50*time.Millisecond)
	after := testutil.CollectAndCount(StageDuration)
	if after <= before {
		t.Fatalf("expected a new histogram sample, before=%d after=%d", before, after)
	}
}

func TestPoolAndQueueGauges(t *testing.T) {
	SetPoolFreeConnections(3)
	if got := testutil.ToFloat64(PoolFreeConnections); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	SetSchedulerQueueDepth(7)
	if got := testutil.ToFloat64(SchedulerQueueDepth); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	initial := testutil.ToFloat64(ActiveWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(ActiveWorkers); got != initial+1 {
		t.Fatalf("expected %v, got %v", initial+1, got)
	}
}
