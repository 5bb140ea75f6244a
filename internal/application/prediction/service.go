// Package prediction provides the application-level batcher and scheduler for
// property prediction: forming jobs from newly ingested molecules, dispatching
// due jobs to the external engine with bounded concurrency, and merging
// returned values onto molecule records.
package prediction

import (
	"context"
	"sync"
	"time"

	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainPred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/redis"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	engine "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/prediction"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// mergeRetries bounds the re-read attempts when a property merge loses an
// optimistic concurrency race.
const mergeRetries = 3

// CycleReport summarises one scheduler cycle.
type CycleReport struct {
	// Skipped is true when another worker replica held the cycle lock.
	Skipped    bool
	Dispatched int
	Succeeded  int
	Retried    int
	Failed     int
}

// Service is the prediction orchestration entry point.
type Service interface {
	// Schedule forms QUEUED jobs for the given molecules, skipping molecules
	// already covered by a live job or already holding every requested
	// property value.
	Schedule(ctx context.Context, moleculeIDs []common.ID) error

	// RunCycle dispatches due jobs to the engine.  At most one cycle runs
	// across all worker replicas at a time; a replica that loses the lock
	// returns a skipped report, not an error.
	RunCycle(ctx context.Context) (*CycleReport, error)

	// Retrigger creates a fresh job for the molecules of a terminally FAILED
	// job and returns the new job's id.
	Retrigger(ctx context.Context, jobID common.ID) (common.ID, error)

	// QueueDepths returns job counts by state for the operator surface.
	QueueDepths(ctx context.Context) (map[domainPred.State]int64, error)
}

// Config carries the scheduling knobs.
type Config struct {
	// Properties is the property list requested for every molecule.
	Properties []string
	// BatchSize bounds molecules per job and per engine call.
	BatchSize int
	// Concurrency bounds jobs dispatched in parallel per cycle.
	Concurrency int
	// CycleLockTTL bounds how long one replica may hold the cycle lock.  It
	// must outlive the longest engine call or a second replica starts a
	// concurrent scheduling step.
	CycleLockTTL time.Duration
	// Policy governs attempt ceilings and retry spacing.
	Policy domainPred.RetryPolicy
}

type serviceImpl struct {
	cfg       Config
	jobs      domainPred.Repository
	molecules domainMol.Repository
	engine    engine.EngineClient
	locks     redis.LockFactory
	publisher kafka.Publisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
}

// NewService wires the prediction scheduler.  locks and publisher are
// optional; a nil lock factory disables cross-replica cycle exclusion.
func NewService(
	cfg Config,
	jobs domainPred.Repository,
	molecules domainMol.Repository,
	engineClient engine.EngineClient,
	locks redis.LockFactory,
	publisher kafka.Publisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CycleLockTTL <= 0 {
		cfg.CycleLockTTL = time.Minute
	}
	return &serviceImpl{
		cfg:       cfg,
		jobs:      jobs,
		molecules: molecules,
		engine:    engineClient,
		locks:     locks,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("prediction"),
		now:       time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduling
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Schedule(ctx context.Context, moleculeIDs []common.ID) error {
	if len(moleculeIDs) == 0 {
		return nil
	}
	if len(s.cfg.Properties) == 0 {
		return apperrors.InvalidParam("no prediction properties configured")
	}

	active, err := s.jobs.ActiveMoleculeIDs(ctx)
	if err != nil {
		return err
	}
	found, err := s.molecules.FindByIDs(ctx, moleculeIDs)
	if err != nil {
		return err
	}

	var eligible []common.ID
	for _, id := range moleculeIDs {
		if _, live := active[id]; live {
			continue
		}
		m, ok := found[id]
		if !ok {
			s.logger.Warn("skipping unknown molecule", logging.String("molecule_id", string(id)))
			continue
		}
		if m.HasAllProperties(s.cfg.Properties) {
			continue
		}
		// Nil placeholders let readers tell "prediction pending" apart from
		// "never requested".
		m.RequestProperties(s.cfg.Properties)
		if err := s.molecules.MergeProperties(ctx, m); err != nil {
			s.logger.Warn("failed to register property placeholders",
				logging.String("molecule_id", string(id)), logging.Err(err))
		}
		eligible = append(eligible, id)
	}

	for start := 0; start < len(eligible); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		job, err := domainPred.NewJob(eligible[start:end], s.cfg.Properties, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if err := s.jobs.Save(ctx, job); err != nil {
			return err
		}
		s.logger.Info("prediction job queued",
			logging.String("job_id", string(job.ID)),
			logging.Int("molecules", len(job.MoleculeIDs)),
		)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycle dispatch
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := s.now()
	report := &CycleReport{}

	if s.locks != nil {
		lock := s.locks.NewMutex(redis.SchedulerCycleLock,
			redis.WithLockTTL(s.cfg.CycleLockTTL))
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release cycle lock", logging.Err(err))
			}
		}()
	}

	due, err := s.jobs.FindDue(ctx, s.now(), s.cfg.Concurrency*4)
	if err != nil {
		return nil, err
	}
	report.Dispatched = len(due)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan *domainPred.Job)
	)
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				outcome := s.processJob(ctx, job)
				mu.Lock()
				switch outcome {
				case outcomeSucceeded:
					report.Succeeded++
				case outcomeRetried:
					report.Retried++
				case outcomeFailed:
					report.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, job := range due {
		queue <- job
	}
	close(queue)
	wg.Wait()

	s.updateQueueDepth(ctx)
	s.metrics.PredictionCycleDuration.WithLabelValues().Observe(time.Since(start).Seconds())

	s.logger.Info("scheduler cycle finished",
		logging.Int("dispatched", report.Dispatched),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("retried", report.Retried),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

type jobOutcome int

const (
	outcomeSkipped jobOutcome = iota
	outcomeSucceeded
	outcomeRetried
	outcomeFailed
)

func (s *serviceImpl) processJob(ctx context.Context, job *domainPred.Job) jobOutcome {
	if err := job.Start(s.cfg.Policy); err != nil {
		s.logger.Warn("job cannot start", logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		// A lost version race means another replica claimed the job.
		if apperrors.IsConcurrentModification(err) {
			return outcomeSkipped
		}
		s.logger.Error("failed to claim job", logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}

	values, callErr := s.callEngine(ctx, job)
	if callErr != nil {
		return s.failJob(ctx, job, callErr)
	}

	if err := job.Succeed(); err != nil {
		s.logger.Error("job state error", logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("failed to finish job", logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}

	s.mergeResults(ctx, job, values)
	s.metrics.PredictionJobsTotal.WithLabelValues("succeeded").Inc()
	return outcomeSucceeded
}

// callEngine loads the job's molecules and runs one engine call.
func (s *serviceImpl) callEngine(ctx context.Context, job *domainPred.Job) (engine.Result, error) {
	found, err := s.molecules.FindByIDs(ctx, job.MoleculeIDs)
	if err != nil {
		return nil, err
	}

	structures := make([]engine.StructureInput, 0, len(job.MoleculeIDs))
	for _, id := range job.MoleculeIDs {
		m, ok := found[id]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrCodeMoleculeNotFound,
				"job %s references missing molecule %s", job.ID, id)
		}
		structures = append(structures, engine.StructureInput{
			MoleculeID: string(m.ID),
			Structure:  m.RawStructure,
			Format:     string(m.Format),
		})
	}

	callStart := s.now()
	values, err := s.engine.Predict(ctx, engine.Request{
		Structures: structures,
		Properties: job.Properties,
	})
	s.metrics.PredictionCallDuration.WithLabelValues().Observe(time.Since(callStart).Seconds())
	if err != nil {
		s.metrics.PredictionEngineCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.PredictionEngineCalls.WithLabelValues("ok").Inc()
	return values, nil
}

func (s *serviceImpl) failJob(ctx context.Context, job *domainPred.Job, callErr error) jobOutcome {
	if err := job.Fail(callErr, s.cfg.Policy, s.now()); err != nil {
		s.logger.Error("job state error", logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("failed to record job failure",
			logging.String("job_id", string(job.ID)), logging.Err(err))
		return outcomeSkipped
	}

	if !job.Exhausted() {
		s.metrics.PredictionJobsTotal.WithLabelValues("retried").Inc()
		s.logger.Warn("job requeued after call failure",
			logging.String("job_id", string(job.ID)),
			logging.Int("attempts", job.Attempts),
			logging.Err(callErr),
		)
		return outcomeRetried
	}

	s.metrics.PredictionJobsTotal.WithLabelValues("failed").Inc()
	s.logger.Error("job exhausted its retries",
		logging.String("job_id", string(job.ID)),
		logging.Int("attempts", job.Attempts),
		logging.Err(callErr),
	)
	s.publishJobFailed(ctx, job)
	return outcomeFailed
}

// mergeResults writes predicted values onto each molecule.  A lost version
// race re-reads the record and retries so concurrent merges never drop values.
func (s *serviceImpl) mergeResults(ctx context.Context, job *domainPred.Job, values engine.Result) {
	for _, id := range job.MoleculeIDs {
		molValues, ok := values[string(id)]
		if !ok {
			continue
		}
		if err := s.mergeWithRetry(ctx, id, molValues); err != nil {
			s.logger.Error("failed to merge predicted values",
				logging.String("molecule_id", string(id)), logging.Err(err))
			continue
		}
		s.publishPropertiesMerged(ctx, id, molValues)
	}
}

func (s *serviceImpl) mergeWithRetry(ctx context.Context, id common.ID, values map[string]float64) error {
	var lastErr error
	for attempt := 0; attempt < mergeRetries; attempt++ {
		m, err := s.molecules.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := m.MergeProperties(values); err != nil {
			return err
		}
		if err := s.molecules.MergeProperties(ctx, m); err != nil {
			if apperrors.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrigger and operator surface
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Retrigger(ctx context.Context, jobID common.ID) (common.ID, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !job.Exhausted() {
		return "", apperrors.InvalidState(
			"only terminally failed jobs can be retriggered")
	}

	// The one-live-job-per-molecule exclusion holds on this path too: a
	// repeated retrigger of the same failed job finds its molecules already
	// covered by the fresh job and is rejected.
	active, err := s.jobs.ActiveMoleculeIDs(ctx)
	if err != nil {
		return "", err
	}
	eligible := make([]common.ID, 0, len(job.MoleculeIDs))
	for _, id := range job.MoleculeIDs {
		if _, live := active[id]; live {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return "", apperrors.InvalidState(
			"every molecule of the failed job is already covered by a live job")
	}

	fresh, err := domainPred.NewJob(eligible, job.Properties, s.cfg.BatchSize)
	if err != nil {
		return "", err
	}
	if err := s.jobs.Save(ctx, fresh); err != nil {
		return "", err
	}

	s.logger.Info("job retriggered",
		logging.String("failed_job_id", string(jobID)),
		logging.String("new_job_id", string(fresh.ID)),
	)
	return fresh.ID, nil
}

func (s *serviceImpl) QueueDepths(ctx context.Context) (map[domainPred.State]int64, error) {
	return s.jobs.CountByState(ctx)
}

func (s *serviceImpl) updateQueueDepth(ctx context.Context) {
	counts, err := s.jobs.CountByState(ctx)
	if err != nil {
		s.logger.Warn("failed to read queue depth", logging.Err(err))
		return
	}
	s.metrics.PredictionJobQueueDepth.WithLabelValues("queued").
		Set(float64(counts[domainPred.StateQueued]))
	s.metrics.PredictionJobQueueDepth.WithLabelValues("in_flight").
		Set(float64(counts[domainPred.StateInFlight]))
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) publishJobFailed(ctx context.Context, job *domainPred.Job) {
	if s.publisher == nil {
		return
	}
	ids := make([]string, len(job.MoleculeIDs))
	for i, id := range job.MoleculeIDs {
		ids[i] = string(id)
	}
	env, err := kafka.NewEventEnvelope("prediction.job_failed", "prediction", kafka.PredictionJobFailedPayload{
		JobID:       string(job.ID),
		MoleculeIDs: ids,
		Attempts:    job.Attempts,
		LastError:   job.LastError,
		FailedAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to build job-failed event", logging.Err(err))
		return
	}
	s.publishEnvelope(ctx, kafka.TopicPredictionJobFailed, string(job.ID), env)
}

func (s *serviceImpl) publishPropertiesMerged(ctx context.Context, id common.ID, values map[string]float64) {
	if s.publisher == nil {
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	env, err := kafka.NewEventEnvelope("molecule.properties_merged", "prediction", kafka.PropertiesMergedPayload{
		MoleculeID: string(id),
		Properties: names,
		Origin:     "predicted",
		MergedAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to build properties-merged event", logging.Err(err))
		return
	}
	s.publishEnvelope(ctx, kafka.TopicMoleculePropertiesMerged, string(id), env)
}

func (s *serviceImpl) publishEnvelope(ctx context.Context, topic, key string, env *kafka.EventEnvelope) {
	if err := s.publisher.PublishEnvelope(ctx, topic, key, env); err != nil {
		s.metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		s.logger.Warn("failed to publish event", logging.String("topic", topic), logging.Err(err))
		return
	}
	s.metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()
}
