package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"staysync/internal/domain"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{} // when set, Refresh blocks until the gate closes
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeRunner) Refresh(ctx context.Context, p domain.Partition) domain.RefreshResult {
	f.mu.Lock()
	f.calls[p.JobID()]++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	res := domain.RefreshResult{
		JobID:     p.JobID(),
		Partition: p,
		Status:    domain.JobCompleted,
		Processed: 5,
		Created:   2,
		Updated:   3,
		Duration:  time.Millisecond,
	}
	if f.fail[p.JobID()] {
		res.Status = domain.JobError
		res.Errors = []string{"upstream down"}
	}
	return res
}

func (f *fakeRunner) count(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[jobID]
}

func tier(id string, interval time.Duration, ps ...domain.Partition) domain.Tier {
	return domain.Tier{ID: id, Interval: interval, Partitions: ps}
}

func miami() domain.Partition  { return domain.Partition{Name: "Miami", Region: "FL", Country: "US"} }
func toluca() domain.Partition { return domain.Partition{Name: "Toluca", Country: "Mexico"} }

func TestRegisterIsIdempotentReplace(t *testing.T) {
	s := New(newFakeRunner(), 2, time.Second, zerolog.Nop())

	s.Register(miami(), tier("high", 30*time.Minute))
	s.Register(miami(), tier("low", 6*time.Hour))

	h := s.Health()
	if h.Jobs != 1 {
		t.Fatalf("jobs = %d, want 1", h.Jobs)
	}
	if h.Detail[0].Tier != "low" || h.Detail[0].Interval != 6*time.Hour {
		t.Fatalf("replacement did not take: %+v", h.Detail[0])
	}
	if h.Detail[0].Status != domain.JobIdle {
		t.Fatalf("fresh job status = %q", h.Detail[0].Status)
	}
	if st := s.Stats(); st.NeverRun != 1 || st.SuccessRate != 0 {
		t.Fatalf("fresh table stats: %+v", st)
	}
}

func TestTriggerNowRunsAndRecords(t *testing.T) {
	r := newFakeRunner()
	s := New(r, 2, time.Second, zerolog.Nop())
	s.Register(miami(), tier("high", 30*time.Minute))
	s.Register(toluca(), tier("low", 6*time.Hour))

	res, err := s.TriggerNow(context.Background(), miami().JobID())
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if res.Status != domain.JobCompleted || res.Processed != 5 {
		t.Fatalf("result: %+v", res)
	}
	if r.count(miami().JobID()) != 1 {
		t.Fatalf("runner calls = %d", r.count(miami().JobID()))
	}

	snaps := s.Jobs()
	if snaps[0].Runs != 1 || snaps[0].Processed != 5 || snaps[0].Created != 2 {
		t.Fatalf("snapshot: %+v", snaps[0])
	}
	if snaps[1].Runs != 0 || snaps[1].Status != domain.JobIdle {
		t.Fatalf("other partition touched: %+v", snaps[1])
	}

	st := s.Stats()
	if st.TotalJobs != 2 || st.Succeeded != 1 || st.NeverRun != 1 {
		t.Fatalf("stats: %+v", st)
	}
	// rate is over executed jobs; the never-run partition must not dilute it
	if st.SuccessRate != 100 {
		t.Fatalf("success rate = %f, want 100", st.SuccessRate)
	}
}

func TestTriggerNowUnknownPartition(t *testing.T) {
	s := New(newFakeRunner(), 2, time.Second, zerolog.Nop())
	if _, err := s.TriggerNow(context.Background(), "refresh_hotels_nowhere__"); !errors.Is(err, domain.ErrUnknownPartition) {
		t.Fatalf("err = %v", err)
	}
}

func TestOverlappingRunIsSkippedNotQueued(t *testing.T) {
	r := newFakeRunner()
	r.gate = make(chan struct{})
	s := New(r, 2, time.Second, zerolog.Nop())
	s.Register(miami(), tier("high", 30*time.Minute))
	id := miami().JobID()

	done := make(chan domain.RefreshResult, 1)
	go func() {
		res, _ := s.TriggerNow(context.Background(), id)
		done <- res
	}()

	// wait until the first run holds the in-flight guard
	waitFor(t, func() bool { return s.Jobs()[0].Status == domain.JobRunning })

	if _, err := s.TriggerNow(context.Background(), id); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("overlapping trigger: %v", err)
	}
	// a timer tick while running is dropped the same way
	s.dispatch(id)

	close(r.gate)
	res := <-done
	if res.Status != domain.JobCompleted {
		t.Fatalf("first run: %+v", res)
	}

	waitFor(t, func() bool { return s.Jobs()[0].Runs == 1 })
	snap := s.Jobs()[0]
	if snap.SkippedTicks != 2 {
		t.Fatalf("skipped ticks = %d, want 2", snap.SkippedTicks)
	}
	if r.count(id) != 1 {
		t.Fatalf("runner ran %d times, want 1", r.count(id))
	}
}

func TestPartitionFailureIsolation(t *testing.T) {
	r := newFakeRunner()
	r.fail[miami().JobID()] = true
	s := New(r, 2, time.Second, zerolog.Nop())
	s.Register(miami(), tier("high", 30*time.Minute))
	s.Register(toluca(), tier("low", 6*time.Hour))

	ctx := context.Background()
	if res, err := s.TriggerNow(ctx, miami().JobID()); err != nil || res.Status != domain.JobError {
		t.Fatalf("failing partition: res=%+v err=%v", res, err)
	}
	if res, err := s.TriggerNow(ctx, toluca().JobID()); err != nil || res.Status != domain.JobCompleted {
		t.Fatalf("healthy partition: res=%+v err=%v", res, err)
	}

	st := s.Stats()
	if st.Failed != 1 || st.Succeeded != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if st.SuccessRate != 50 {
		t.Fatalf("success rate = %f, want 50", st.SuccessRate)
	}
	snaps := s.Jobs()
	if len(snaps[0].LastErrors) != 1 || len(snaps[1].LastErrors) != 0 {
		t.Fatalf("error isolation: %+v / %+v", snaps[0].LastErrors, snaps[1].LastErrors)
	}
}

func TestStopDrainsInFlightRuns(t *testing.T) {
	r := newFakeRunner()
	r.gate = make(chan struct{})
	s := New(r, 2, 2*time.Second, zerolog.Nop())
	s.Register(miami(), tier("high", 30*time.Minute))
	s.Start()

	s.dispatch(miami().JobID())
	waitFor(t, func() bool { return s.Jobs()[0].Status == domain.JobRunning })

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(r.gate)
	}()
	if !s.Stop(context.Background()) {
		t.Fatal("drain should complete once the run finishes")
	}
	if s.Jobs()[0].Runs != 1 {
		t.Fatalf("run lost during drain: %+v", s.Jobs()[0])
	}
	if s.Health().Running {
		t.Fatal("still reports running after stop")
	}
}

func TestStopReportsDrainTimeout(t *testing.T) {
	r := newFakeRunner()
	r.gate = make(chan struct{})
	s := New(r, 2, 30*time.Millisecond, zerolog.Nop())
	s.Register(miami(), tier("high", 30*time.Minute))
	s.Start()

	s.dispatch(miami().JobID())
	waitFor(t, func() bool { return s.Jobs()[0].Status == domain.JobRunning })

	if s.Stop(context.Background()) {
		t.Fatal("drain should time out while the run is stuck")
	}
	close(r.gate)
}

func TestTickEngineFiresRegisteredTimers(t *testing.T) {
	if testing.Short() {
		t.Skip("tick engine test sleeps through real intervals")
	}
	r := newFakeRunner()
	s := New(r, 2, time.Second, zerolog.Nop())
	s.RegisterTable(domain.TierTable{Tiers: []domain.Tier{
		tier("test", time.Second, miami()),
	}})
	s.Start()
	defer s.Stop(context.Background())

	waitForN(t, 5*time.Second, func() bool { return r.count(miami().JobID()) >= 1 })
}

func TestScheduleExposesTierTable(t *testing.T) {
	s := New(newFakeRunner(), 2, time.Second, zerolog.Nop())
	table := domain.TierTable{Tiers: []domain.Tier{
		tier("high", 30*time.Minute, miami()),
		tier("low", 6*time.Hour, toluca()),
	}}
	s.RegisterTable(table)

	got := s.Schedule()
	if len(got.Tiers) != 2 || got.Tiers[0].ID != "high" {
		t.Fatalf("schedule: %+v", got)
	}
	if s.Health().Jobs != 2 {
		t.Fatalf("jobs = %d", s.Health().Jobs)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	waitForN(t, time.Second, cond)
}

func waitForN(t *testing.T, max time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
