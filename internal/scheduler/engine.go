package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nixlim/cc-sentinel/internal/alerts"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultSummaryLength = 200
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTimeout sets the dispatch deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSummaryLength sets the maximum rune length of a run summary.
func WithSummaryLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.summaryLen = n
		}
	}
}

// WithSink sets the sink that receives one alert per finished run.
func WithSink(s alerts.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// Engine owns the job collection. All job state is guarded by mu; dispatch
// happens outside the lock on worker goroutines.
type Engine struct {
	mu       sync.Mutex
	jobs     map[int]*Job
	nextID   int
	inflight map[int]bool

	store      JobStore
	runs       RunLog
	dispatcher Dispatcher
	sink       alerts.Sink

	timeout    time.Duration
	summaryLen int
	now        func() time.Time

	// version orders snapshots; saveMu and saved drop a snapshot that lost
	// the race to a newer one.
	version uint64
	saveMu  sync.Mutex
	saved   uint64

	// txMu serializes read-modify-write cycles of this engine; a
	// SharedJobStore lock extends that to other processes.
	txMu sync.Mutex

	workers sync.WaitGroup
	stopped atomic.Bool
	manual  singleflight.Group
}

type snapshot struct {
	set     JobSet
	version uint64
}

// NewEngine creates an engine. Call Load before ticking.
func NewEngine(store JobStore, runs RunLog, d Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		jobs:       make(map[int]*Job),
		nextID:     1,
		inflight:   make(map[int]bool),
		store:      store,
		runs:       runs,
		dispatcher: d,
		sink:       alerts.Nop{},
		timeout:    defaultTimeout,
		summaryLen: defaultSummaryLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the in-memory collection with the persisted one. A job whose
// persisted slot already passed stays due so the next Tick runs it once;
// every other active job gets a slot computed fresh from now.
func (e *Engine) Load() error {
	unlock := e.lock()
	defer unlock()

	set, err := e.store.LoadJobs()
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}
	now := e.now()

	e.mu.Lock()
	e.jobs = make(map[int]*Job, len(set.Jobs))
	maxID := 0
	for _, j := range set.Jobs {
		job := j.clone()
		if _, dup := e.jobs[job.ID]; dup || job.ID <= 0 {
			log.Printf("WARNING: skipping job with invalid or duplicate id %d", job.ID)
			continue
		}
		if err := job.Recurrence.Validate(); err != nil {
			log.Printf("WARNING: job %d has an invalid schedule, pausing it: %v", job.ID, err)
			job.Enabled = false
			job.Status = StatusPaused
			job.NextRunAt = nil
		}
		if job.RemainingRuns != nil && *job.RemainingRuns < 0 {
			log.Printf("WARNING: job %d has negative remaining runs, clamping to 0", job.ID)
			zero := 0
			job.RemainingRuns = &zero
		}

		switch {
		case !job.Enabled || job.Status == StatusCompleted:
			job.NextRunAt = nil
		case job.NextRunAt != nil && !job.NextRunAt.After(now):
			log.Printf("Job %d missed its slot at %s, catching up", job.ID, job.NextRunAt.Format(time.RFC3339))
		default:
			job.NextRunAt = nextPtr(job, now)
		}

		e.jobs[job.ID] = &job
		maxID = max(maxID, job.ID)
	}
	e.nextID = max(set.NextID, maxID+1, 1)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return nil
}

// AddJob validates spec and adds an enabled job. It returns the new id.
func (e *Engine) AddJob(spec JobSpec) (int, error) {
	now := e.now()
	if err := validateSpec(spec, now); err != nil {
		return 0, err
	}

	end := e.begin()
	defer end()
	e.mu.Lock()
	job := &Job{
		ID:         e.nextID,
		Prompt:     spec.Prompt,
		Target:     spec.Target,
		Recurrence: spec.Recurrence,
		Enabled:    true,
		Status:     StatusPending,
		CreatedAt:  now,
		Priority:   spec.Priority,
		Quiet:      spec.Quiet,
	}
	if spec.Runs > 0 {
		n := spec.Runs
		job.RemainingRuns = &n
	}
	job.NextRunAt = nextPtr(*job, now)
	e.jobs[job.ID] = job
	e.nextID++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return job.ID, nil
}

func validateSpec(spec JobSpec, now time.Time) error {
	if strings.TrimSpace(spec.Prompt) == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if spec.Runs < 0 {
		return fmt.Errorf("runs must not be negative, got %d", spec.Runs)
	}
	if _, err := ParsePriority(string(spec.Priority)); err != nil {
		return err
	}
	if err := spec.Recurrence.Validate(); err != nil {
		return err
	}
	if spec.Recurrence.Kind == KindOnce {
		at, _ := spec.Recurrence.Instant()
		if !at.After(now) {
			return fmt.Errorf("%w: %s is in the past", ErrInvalidRecurrence, at.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

// EditJob replaces the definition of a job and recomputes its slot.
func (e *Engine) EditJob(id int, spec JobSpec) error {
	now := e.now()
	if err := validateSpec(spec, now); err != nil {
		return err
	}

	end := e.begin()
	defer end()
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if job.Status == StatusCompleted {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobCompleted, id)
	}
	job.Prompt = spec.Prompt
	job.Target = spec.Target
	job.Recurrence = spec.Recurrence
	job.Priority = spec.Priority
	job.Quiet = spec.Quiet
	job.RemainingRuns = nil
	if spec.Runs > 0 {
		n := spec.Runs
		job.RemainingRuns = &n
	}
	if job.Enabled {
		job.NextRunAt = nextPtr(*job, now)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return nil
}

// CopyJob adds a new enabled job with the same definition as id.
func (e *Engine) CopyJob(id int) (int, error) {
	end := e.begin()
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		end()
		return 0, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	spec := job.Spec()
	if job.RemainingRuns != nil && *job.RemainingRuns > 0 {
		spec.Runs = *job.RemainingRuns
	}
	e.mu.Unlock()
	end()

	return e.AddJob(spec)
}

// RemoveJob deletes a job. A dispatch already in flight still completes and
// writes its run record.
func (e *Engine) RemoveJob(id int) error {
	end := e.begin()
	defer end()
	e.mu.Lock()
	if _, ok := e.jobs[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	delete(e.jobs, id)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return nil
}

// ToggleJob flips a job between pending and paused and returns the new
// enabled state. Re-enabling computes a fresh slot from now, so time spent
// paused is not caught up.
func (e *Engine) ToggleJob(id int) (bool, error) {
	now := e.now()

	end := e.begin()
	defer end()
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if job.Status == StatusCompleted {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrJobCompleted, id)
	}
	if !job.Enabled && job.exhausted() {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrJobExhausted, id)
	}

	job.Enabled = !job.Enabled
	if job.Enabled {
		job.Status = StatusPending
		job.NextRunAt = nextPtr(*job, now)
	} else {
		job.Status = StatusPaused
		job.NextRunAt = nil
	}
	enabled := job.Enabled
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return enabled, nil
}

// ClearCompleted removes every completed job and returns how many were
// removed.
func (e *Engine) ClearCompleted() int {
	end := e.begin()
	defer end()
	e.mu.Lock()
	n := 0
	for id, job := range e.jobs {
		if job.Status == StatusCompleted {
			delete(e.jobs, id)
			n++
		}
	}
	if n == 0 {
		e.mu.Unlock()
		return 0
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	return n
}

// ListJobs returns copies of all jobs ordered by id.
func (e *Engine) ListJobs() []Job {
	e.begin()()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listLocked()
}

// Job returns a copy of one job.
func (e *Engine) Job(id int) (Job, bool) {
	e.begin()()
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// NextRunTime computes the next slot of job relative to now.
func (e *Engine) NextRunTime(job Job, now time.Time) (time.Time, bool) {
	return NextRunTime(job, now)
}

// History returns run records for jobID (0 for all jobs), oldest first,
// keeping the last limit entries.
func (e *Engine) History(jobID, limit int) ([]RunRecord, error) {
	if e.runs == nil {
		return nil, nil
	}
	recs, err := e.runs.Runs(jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading run history: %w", err)
	}
	return recs, nil
}

type dispatchReq struct {
	id       int
	prompt   string
	target   string
	kind     Kind
	priority Priority
	quiet    bool
}

func newDispatchReq(job *Job) dispatchReq {
	return dispatchReq{
		id:       job.ID,
		prompt:   job.Prompt,
		target:   job.Target,
		kind:     job.Recurrence.Kind,
		priority: job.Priority,
		quiet:    job.Quiet,
	}
}

// Tick dispatches every enabled job whose slot is at or before now and
// returns their ids, higher priority first. Each slot is advanced before its dispatch starts, so a
// slot fires at most once. Dispatches run on their own goroutines; Tick
// never waits for them.
func (e *Engine) Tick(now time.Time) []int {
	if e.stopped.Load() {
		return nil
	}
	end := e.begin()
	defer end()

	e.mu.Lock()
	if e.stopped.Load() {
		e.mu.Unlock()
		return nil
	}
	ids := make([]int, 0, len(e.jobs))
	for id := range e.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var due []dispatchReq
	dirty := false
	for _, id := range ids {
		job := e.jobs[id]
		if !job.Enabled || job.Status == StatusCompleted || e.inflight[id] {
			continue
		}
		if job.NextRunAt == nil {
			job.NextRunAt = nextPtr(*job, now)
			if job.NextRunAt == nil {
				continue
			}
			dirty = true
		}
		if job.NextRunAt.After(now) {
			continue
		}

		if job.Recurrence.Kind == KindOnce {
			job.NextRunAt = nil
		} else {
			job.NextRunAt = nextPtr(*job, now)
		}
		e.inflight[id] = true
		dirty = true
		due = append(due, newDispatchReq(job))
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].priority.rank() > due[j].priority.rank()
	})
	var snap snapshot
	if dirty {
		snap = e.snapshotLocked()
	}
	e.workers.Add(len(due))
	e.mu.Unlock()

	if dirty {
		e.persist(snap)
	}

	fired := make([]int, 0, len(due))
	for _, req := range due {
		go func(req dispatchReq) {
			defer e.workers.Done()
			rec := e.dispatch(req, false)
			e.finishScheduled(req, rec)
		}(req)
		fired = append(fired, req.id)
	}
	return fired
}

// RunNow dispatches job id synchronously regardless of its enabled state or
// schedule. It updates the run count and last run time but leaves the slot,
// remaining runs and completion untouched. Concurrent calls for the same id
// share one dispatch.
func (e *Engine) RunNow(ctx context.Context, id int) (RunRecord, error) {
	v, err, _ := e.manual.Do(strconv.Itoa(id), func() (any, error) {
		end := e.begin()
		e.mu.Lock()
		if e.stopped.Load() {
			e.mu.Unlock()
			end()
			return RunRecord{}, ErrEngineStopped
		}
		job, ok := e.jobs[id]
		if !ok {
			e.mu.Unlock()
			end()
			return RunRecord{}, fmt.Errorf("%w: %d", ErrJobNotFound, id)
		}
		req := newDispatchReq(job)
		e.workers.Add(1)
		e.mu.Unlock()
		end()
		defer e.workers.Done()

		rec := e.dispatchCtx(ctx, req, true)
		e.finishManual(req, rec)
		return rec, nil
	})
	if err != nil {
		return RunRecord{}, err
	}
	return v.(RunRecord), nil
}

func (e *Engine) dispatch(req dispatchReq, manual bool) RunRecord {
	return e.dispatchCtx(context.Background(), req, manual)
}

type dispatchResult struct {
	resp string
	err  error
}

// dispatchCtx runs the dispatcher under the engine timeout. A dispatcher
// that ignores its context is abandoned at the deadline and the run is
// recorded as a timeout.
func (e *Engine) dispatchCtx(parent context.Context, req dispatchReq, manual bool) RunRecord {
	firedAt := e.now()
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	done := make(chan dispatchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- dispatchResult{err: fmt.Errorf("dispatcher panic: %v", r)}
			}
		}()
		if e.dispatcher == nil {
			done <- dispatchResult{err: fmt.Errorf("no dispatcher configured")}
			return
		}
		resp, err := e.dispatcher.Dispatch(ctx, req.prompt, req.target)
		done <- dispatchResult{resp: resp, err: err}
	}()

	var res dispatchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = dispatchResult{err: fmt.Errorf("dispatch timed out after %s: %w", e.timeout, ctx.Err())}
	}

	rec := RunRecord{
		JobID:   req.id,
		Prompt:  req.prompt,
		FiredAt: firedAt,
		Success: res.err == nil,
		Manual:  manual,
	}
	if res.err != nil {
		rec.ResponseSummary = summarize(res.err.Error(), e.summaryLen)
	} else {
		rec.ResponseSummary = summarize(res.resp, e.summaryLen)
	}
	return rec
}

func (e *Engine) finishScheduled(req dispatchReq, rec RunRecord) {
	end := e.begin()
	defer end()
	e.mu.Lock()
	delete(e.inflight, req.id)
	var snap snapshot
	job, ok := e.jobs[req.id]
	if ok {
		fired := rec.FiredAt
		job.LastRunAt = &fired
		job.RunCount++

		if job.RemainingRuns != nil {
			if *job.RemainingRuns > 0 {
				*job.RemainingRuns--
			} else {
				log.Printf("WARNING: job %d ran with no remaining runs", job.ID)
			}
			if *job.RemainingRuns == 0 && job.Recurrence.Kind != KindOnce {
				job.Enabled = false
				job.Status = StatusPaused
				job.NextRunAt = nil
			}
		}
		if job.Recurrence.Kind == KindOnce {
			job.Enabled = false
			job.Status = StatusCompleted
			job.NextRunAt = nil
		}
		snap = e.snapshotLocked()
	}
	e.mu.Unlock()

	if ok {
		e.persist(snap)
	}
	e.record(rec, req.quiet)
}

func (e *Engine) finishManual(req dispatchReq, rec RunRecord) {
	end := e.begin()
	defer end()
	e.mu.Lock()
	var snap snapshot
	job, ok := e.jobs[req.id]
	if ok {
		fired := rec.FiredAt
		job.LastRunAt = &fired
		job.RunCount++
		snap = e.snapshotLocked()
	}
	e.mu.Unlock()

	if ok {
		e.persist(snap)
	}
	e.record(rec, req.quiet)
}

func (e *Engine) record(rec RunRecord, quiet bool) {
	if e.runs != nil {
		if err := e.runs.AppendRun(rec); err != nil {
			log.Printf("ERROR: writing run record for job %d: %v", rec.JobID, err)
		}
	}
	if quiet && rec.Success {
		return
	}

	a := alerts.Alert{
		Rule:     alerts.RuleScheduledRun,
		Severity: alerts.SeverityInfo,
		Message:  fmt.Sprintf("job %d ran: %s", rec.JobID, rec.ResponseSummary),
		Source:   "job-" + strconv.Itoa(rec.JobID),
		FiredAt:  rec.FiredAt,
	}
	if !rec.Success {
		a.Severity = alerts.SeverityWarning
		a.Message = fmt.Sprintf("job %d failed: %s", rec.JobID, rec.ResponseSummary)
	}
	e.sink.Notify(a)
}

// Run ticks every interval until ctx is cancelled, then stops the engine
// and waits for in-flight dispatches.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return nil
		case <-ticker.C:
			e.safeTick()
		}
	}
}

func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: scheduler tick panic: %v", r)
		}
	}()
	e.Tick(e.now())
}

// Stop makes further ticks no-ops, makes RunNow fail with
// ErrEngineStopped and waits for in-flight dispatches to finish or time
// out. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped.Store(true)
	e.mu.Unlock()
	e.workers.Wait()
}

// Wait blocks until in-flight dispatches finish without stopping the
// engine.
func (e *Engine) Wait() {
	e.workers.Wait()
}

// lock serializes with every other writer of the job store.
func (e *Engine) lock() (unlock func()) {
	e.txMu.Lock()
	shared, ok := e.store.(SharedJobStore)
	if !ok {
		return e.txMu.Unlock
	}
	release, err := shared.LockJobs()
	if err != nil {
		log.Printf("WARNING: job store lock: %v", err)
		return e.txMu.Unlock
	}
	return func() {
		release()
		e.txMu.Unlock()
	}
}

// begin takes the store lock and reloads the collection if another
// process rewrote it since this engine last read or wrote it. The
// returned func releases the lock.
func (e *Engine) begin() (end func()) {
	unlock := e.lock()
	shared, ok := e.store.(SharedJobStore)
	if !ok {
		return unlock
	}
	changed, err := shared.JobsChanged()
	if err != nil {
		log.Printf("WARNING: checking job store: %v", err)
		return unlock
	}
	if changed {
		e.reload()
	}
	return unlock
}

// Open reads the persisted collection as is, without the slot refresh and
// rewrite Load performs. It suits a short-lived process that edits jobs
// while another engine owns the schedule.
func (e *Engine) Open() error {
	unlock := e.lock()
	defer unlock()

	set, err := e.store.LoadJobs()
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}
	e.install(set)
	return nil
}

// reload replaces the collection with the persisted one. Slots were
// already computed by the writer; in-flight dispatches keep their marks.
func (e *Engine) reload() {
	set, err := e.store.LoadJobs()
	if err != nil {
		log.Printf("ERROR: reloading jobs: %v", err)
		return
	}
	e.install(set)
}

func (e *Engine) install(set JobSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = make(map[int]*Job, len(set.Jobs))
	maxID := 0
	for _, j := range set.Jobs {
		if j.ID <= 0 {
			continue
		}
		job := j.clone()
		e.jobs[job.ID] = &job
		maxID = max(maxID, job.ID)
	}
	e.nextID = max(set.NextID, maxID+1, 1)
}

func (e *Engine) persist(snap snapshot) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if snap.version <= e.saved {
		return
	}
	if err := e.store.SaveJobs(snap.set); err != nil {
		log.Printf("ERROR: saving jobs: %v", err)
		return
	}
	e.saved = snap.version
}

func (e *Engine) snapshotLocked() snapshot {
	e.version++
	return snapshot{
		set:     JobSet{NextID: e.nextID, Jobs: e.listLocked()},
		version: e.version,
	}
}

func (e *Engine) listLocked() []Job {
	out := make([]Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func nextPtr(job Job, now time.Time) *time.Time {
	t, ok := NextRunTime(job, now)
	if !ok {
		return nil
	}
	return &t
}

// summarize collapses whitespace and truncates s to n runes.
func summarize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
