package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonlvhit/gocron"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

// Runner executes one partition refresh. It reports outcome through the
// result snapshot, never through a Go error.
type Runner interface {
	Refresh(ctx context.Context, p domain.Partition) domain.RefreshResult
}

// jobState is one partition's entry in the job table. inFlight is the
// overlap guard, flipped with CAS before a pool slot is requested; the
// remaining fields are guarded by Scheduler.mu and written only at run
// boundaries.
type jobState struct {
	inFlight atomic.Bool

	partition domain.Partition
	tier      string
	interval  time.Duration

	status       string
	runs         int
	skippedTicks int
	lastStart    time.Time
	lastDuration time.Duration
	processed    int
	created      int
	updated      int
	amenities    int
	images       int
	rates        int
	lastErrors   []string
}

// Scheduler owns one recurring timer per partition, driven by a gocron tick
// engine. Ticks dispatch onto goroutines bounded by a fixed worker pool; a
// tick for a partition whose previous run is still in flight is dropped and
// counted, never queued.
type Scheduler struct {
	runner Runner
	pool   *semaphore.Weighted
	drain  time.Duration
	log    zerolog.Logger

	mu      sync.RWMutex
	jobs    map[string]*jobState
	order   []string
	tiers   domain.TierTable
	running bool
	cron    *gocron.Scheduler
	stop    chan bool

	wg sync.WaitGroup
}

func New(runner Runner, workers int, drain time.Duration, log zerolog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if drain <= 0 {
		drain = 30 * time.Second
	}
	return &Scheduler{
		runner: runner,
		pool:   semaphore.NewWeighted(int64(workers)),
		drain:  drain,
		log:    log,
		jobs:   map[string]*jobState{},
	}
}

// Register adds or replaces the partition's timer. Re-registering is how a
// configuration reload changes a partition's cadence; the job entry and its
// counters survive the replacement.
func (s *Scheduler) Register(p domain.Partition, tier domain.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := p.JobID()
	j, ok := s.jobs[id]
	if !ok {
		j = &jobState{status: domain.JobIdle}
		s.jobs[id] = j
		s.order = append(s.order, id)
	}
	j.partition = p
	j.tier = tier.ID
	j.interval = tier.Interval

	if s.running {
		s.rebuildLocked()
	}
}

// RegisterTable registers every partition in the table and keeps the table
// for Schedule().
func (s *Scheduler) RegisterTable(t domain.TierTable) {
	s.mu.Lock()
	s.tiers = t
	s.mu.Unlock()
	for _, tier := range t.Tiers {
		for _, p := range tier.Partitions {
			s.Register(p, tier)
		}
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.rebuildLocked()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// rebuildLocked tears down the tick engine and rebuilds it from the job
// table. gocron keys jobs by function, which cannot address per-partition
// closures individually, so replacement is always a full rebuild.
func (s *Scheduler) rebuildLocked() {
	if s.stop != nil {
		s.stop <- true
		s.stop = nil
	}
	s.cron = gocron.NewScheduler()
	for _, id := range s.order {
		secs := uint64(s.jobs[id].interval / time.Second)
		if secs == 0 {
			secs = 1
		}
		if err := s.cron.Every(secs).Seconds().Do(func() { s.dispatch(id) }); err != nil {
			s.log.Error().Err(err).Str("job_id", id).Msg("schedule job")
		}
	}
	s.stop = s.cron.Start()
}

// Stop halts the tick engine, then waits for in-flight runs up to the drain
// timeout. Reports whether the drain completed.
func (s *Scheduler) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	if s.stop != nil {
		s.stop <- true
		s.stop = nil
	}
	if s.cron != nil {
		s.cron.Clear()
		s.cron = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("scheduler drained")
		return true
	case <-time.After(s.drain):
		s.log.Warn().Dur("drain_timeout", s.drain).Msg("drain timed out with jobs still running")
		return false
	case <-ctx.Done():
		return false
	}
}

// dispatch is the timer tick path: take the overlap guard, then hand the run
// to a goroutine. The tick engine's loop never blocks on the pool or on job
// I/O.
func (s *Scheduler) dispatch(id string) {
	s.mu.RLock()
	j := s.jobs[id]
	var p domain.Partition
	if j != nil {
		p = j.partition
	}
	s.mu.RUnlock()
	if j == nil {
		return
	}

	if !j.inFlight.CompareAndSwap(false, true) {
		s.recordSkip(j, p)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.inFlight.Store(false)
		s.execute(context.Background(), j, p)
	}()
}

// TriggerNow runs the partition synchronously through the same path a timer
// tick takes. A partition already in flight is not run twice: the attempt is
// recorded as a skipped tick and reported as ErrAlreadyRunning.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID string) (domain.RefreshResult, error) {
	s.mu.RLock()
	j := s.jobs[jobID]
	var p domain.Partition
	if j != nil {
		p = j.partition
	}
	s.mu.RUnlock()
	if j == nil {
		return domain.RefreshResult{}, domain.ErrUnknownPartition
	}

	if !j.inFlight.CompareAndSwap(false, true) {
		s.recordSkip(j, p)
		return domain.RefreshResult{}, domain.ErrAlreadyRunning
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer j.inFlight.Store(false)
	return s.execute(ctx, j, p), nil
}

func (s *Scheduler) recordSkip(j *jobState, p domain.Partition) {
	s.mu.Lock()
	j.skippedTicks++
	s.mu.Unlock()
	observability.ObserveRefresh(p.Name, "skipped", 0)
	s.log.Debug().Str("job_id", p.JobID()).Msg("tick dropped, previous run still in flight")
}

func (s *Scheduler) execute(ctx context.Context, j *jobState, p domain.Partition) domain.RefreshResult {
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return domain.RefreshResult{JobID: p.JobID(), Partition: p, Status: domain.JobError, Message: err.Error()}
	}
	defer s.pool.Release(1)

	s.mu.Lock()
	j.status = domain.JobRunning
	j.lastStart = time.Now()
	s.mu.Unlock()

	res := s.runner.Refresh(ctx, p)

	s.mu.Lock()
	j.status = res.Status
	j.runs++
	j.lastDuration = res.Duration
	j.processed += res.Processed
	j.created += res.Created
	j.updated += res.Updated
	j.amenities += res.Amenities
	j.images += res.Images
	j.rates += res.Rates
	j.lastErrors = append([]string(nil), res.Errors...)
	s.mu.Unlock()

	return res
}

func (s *Scheduler) Health() domain.SchedulerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := domain.SchedulerHealth{Running: s.running, Jobs: len(s.jobs)}
	for _, id := range s.order {
		h.Detail = append(h.Detail, s.snapshotLocked(id))
	}
	return h
}

// Jobs returns the per-job snapshots in registration order.
func (s *Scheduler) Jobs() []domain.JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.JobSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.snapshotLocked(id))
	}
	return out
}

func (s *Scheduler) Stats() domain.SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := domain.SchedulerStats{TotalJobs: len(s.jobs)}
	for _, j := range s.jobs {
		switch {
		case j.status == domain.JobCompleted:
			st.Succeeded++
		case j.status == domain.JobError:
			st.Failed++
		case j.runs == 0:
			st.NeverRun++
		}
		st.Processed += j.processed
		st.Created += j.created
		st.Updated += j.updated
		st.Amenities += j.amenities
		st.Images += j.images
		st.SkippedTicks += j.skippedTicks
	}
	// rate over executed jobs only; never-run partitions are not counted
	if executed := st.Succeeded + st.Failed; executed > 0 {
		st.SuccessRate = float64(st.Succeeded) / float64(executed) * 100
	}
	return st
}

func (s *Scheduler) Schedule() domain.TierTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiers
}

func (s *Scheduler) snapshotLocked(id string) domain.JobSnapshot {
	j := s.jobs[id]
	return domain.JobSnapshot{
		JobID:        id,
		Partition:    j.partition,
		Tier:         j.tier,
		Interval:     j.interval,
		Status:       j.status,
		Runs:         j.runs,
		SkippedTicks: j.skippedTicks,
		LastStart:    j.lastStart,
		LastDuration: j.lastDuration,
		Processed:    j.processed,
		Created:      j.created,
		Updated:      j.updated,
		Amenities:    j.amenities,
		Images:       j.images,
		Rates:        j.rates,
		LastErrors:   append([]string(nil), j.lastErrors...),
	}
}
