package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/radar"
)

type countingJobs struct {
	ingests atomic.Int32
	sweeps  atomic.Int32
	fail    bool
}

func (j *countingJobs) IngestLatest(ctx context.Context) (radar.IngestResult, error) {
	j.ingests.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return radar.IngestResult{}, errors.New("job context has no deadline")
	}
	if j.fail {
		return radar.IngestResult{Outcome: radar.OutcomeFailed}, radar.ErrTransfer
	}
	return radar.IngestResult{Outcome: radar.OutcomeNoData}, nil
}

func (j *countingJobs) SweepExpired(ctx context.Context) radar.SweepReport {
	j.sweeps.Add(1)
	return radar.SweepReport{Now: time.Now().UTC()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSchedulerRunsBothJobsImmediately(t *testing.T) {
	jobs := &countingJobs{}
	s := New(jobs, time.Hour, time.Hour, time.Second, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return jobs.ingests.Load() == 1 && jobs.sweeps.Load() == 1 })
}

func TestSchedulerSurvivesFailingIngest(t *testing.T) {
	jobs := &countingJobs{fail: true}
	s := New(jobs, time.Hour, 0, time.Second, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return jobs.ingests.Load() == 1 })
	if jobs.sweeps.Load() != 0 {
		t.Fatalf("sweep should be disabled with a zero interval")
	}
}
