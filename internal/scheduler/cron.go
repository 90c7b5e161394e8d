package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// JobFunc is the work run on each tick of a schedule
type JobFunc func(ctx context.Context) error

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronScheduler runs named jobs on six-field cron expressions
type CronScheduler struct {
	logger *zap.Logger
	cron   *cron.Cron

	mu   sync.RWMutex
	ctx  context.Context
	jobs map[string]*cronJob
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewCronScheduler creates a new scheduler
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	logger = logger.Named("cron")
	cronLogger := &cronLogger{logger: logger}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	}

	return &CronScheduler{
		logger: logger,
		cron:   cron.New(cronOptions...),
		ctx:    context.Background(),
		jobs:   make(map[string]*cronJob),
	}
}

// Start starts the scheduler. Jobs run with ctx.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(s.ListJobs())))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddJob registers fn under a unique name and returns the schedule id
func (s *CronScheduler) AddJob(name, expression string, fn JobFunc) (string, error) {
	spec, err := specParser.Parse(expression)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidExpression, expression, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	next := spec.Next(time.Now())
	job := &cronJob{
		scheduler: s,
		spec:      spec,
		fn:        fn,
		schedule: model.Schedule{
			ID:          uuid.New().String(),
			Name:        name,
			Expression:  expression,
			NextRunTime: &next,
			CreatedAt:   time.Now(),
		},
	}

	entryID := s.cron.Schedule(spec, job)
	job.entryID = entryID
	s.jobs[name] = job

	s.logger.Info("Added job",
		zap.String("id", job.schedule.ID),
		zap.String("name", name),
		zap.String("expression", expression),
		zap.Time("next_run", next))

	return job.schedule.ID, nil
}

// RemoveJob removes a job by name
func (s *CronScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.cron.Remove(job.entryID)
	delete(s.jobs, name)

	s.logger.Info("Removed job", zap.String("name", name))
	return nil
}

// RunJob runs a job immediately, outside its schedule
func (s *CronScheduler) RunJob(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.execute()
}

// ListJobs returns a snapshot of every job, sorted by name
func (s *CronScheduler) ListJobs() []model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]model.Schedule, 0, len(s.jobs))
	for _, job := range s.jobs {
		schedules = append(schedules, job.snapshot())
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].Name < schedules[j].Name
	})
	return schedules
}

func (s *CronScheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// cronJob implements cron.Job interface
type cronJob struct {
	scheduler *CronScheduler
	spec      cron.Schedule
	fn        JobFunc
	entryID   cron.EntryID

	mu       sync.Mutex
	schedule model.Schedule
}

// Run implements cron.Job
func (j *cronJob) Run() {
	// errors are logged by execute
	_ = j.execute()
}

func (j *cronJob) execute() error {
	now := time.Now()
	next := j.spec.Next(now)

	j.mu.Lock()
	j.schedule.LastRunTime = &now
	j.schedule.NextRunTime = &next
	name := j.schedule.Name
	j.mu.Unlock()

	logger := j.scheduler.logger.With(zap.String("name", name))
	if err := j.fn(j.scheduler.context()); err != nil {
		logger.Error("Job failed", zap.Error(err))
		return fmt.Errorf("job %s failed: %w", name, err)
	}

	logger.Info("Executed job",
		zap.Duration("took", time.Since(now)),
		zap.Time("next_run", next))
	return nil
}

func (j *cronJob) snapshot() model.Schedule {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.schedule
}
