package prediction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainPred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/redis"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	engine "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/prediction"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[common.ID]*domainPred.Job
	// onFindDue runs at the top of FindDue, inside the scheduling step.
	onFindDue func()
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[common.ID]*domainPred.Job{}}
}

func (f *fakeJobRepo) Save(_ context.Context, job *domainPred.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := *job
	f.jobs[job.ID] = &snapshot
	return nil
}

func (f *fakeJobRepo) Update(_ context.Context, job *domainPred.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.jobs[job.ID]
	if !ok {
		return apperrors.New(apperrors.ErrCodePredictionJobNotFound, "job not found")
	}
	if stored.Version != job.Version {
		return apperrors.ConcurrentModification("job version mismatch")
	}
	job.Version++
	snapshot := *job
	f.jobs[job.ID] = &snapshot
	return nil
}

func (f *fakeJobRepo) FindByID(_ context.Context, id common.ID) (*domainPred.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodePredictionJobNotFound, "job not found")
	}
	snapshot := *job
	return &snapshot, nil
}

func (f *fakeJobRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*domainPred.Job, error) {
	if f.onFindDue != nil {
		f.onFindDue()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*domainPred.Job
	for _, job := range f.jobs {
		if job.Due(now) && len(due) < limit {
			snapshot := *job
			due = append(due, &snapshot)
		}
	}
	return due, nil
}

func (f *fakeJobRepo) ActiveMoleculeIDs(context.Context) (map[common.ID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := map[common.ID]struct{}{}
	for _, job := range f.jobs {
		if job.State.IsTerminal() {
			continue
		}
		for _, id := range job.MoleculeIDs {
			active[id] = struct{}{}
		}
	}
	return active, nil
}

func (f *fakeJobRepo) CountByState(context.Context) (map[domainPred.State]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domainPred.State]int64{}
	for _, job := range f.jobs {
		counts[job.State]++
	}
	return counts, nil
}

func (f *fakeJobRepo) byState(state domainPred.State) []*domainPred.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domainPred.Job
	for _, job := range f.jobs {
		if job.State == state {
			snapshot := *job
			out = append(out, &snapshot)
		}
	}
	return out
}

type fakeMolRepo struct {
	domainMol.Repository

	mu        sync.Mutex
	molecules map[common.ID]*domainMol.Molecule
	// mergeConflicts counts down; while positive every merge loses its
	// version race.
	mergeConflicts int
	merges         int
}

func newFakeMolRepo() *fakeMolRepo {
	return &fakeMolRepo{molecules: map[common.ID]*domainMol.Molecule{}}
}

func (f *fakeMolRepo) add(m *domainMol.Molecule) { f.molecules[m.ID] = m }

func (f *fakeMolRepo) FindByID(_ context.Context, id common.ID) (*domainMol.Molecule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.molecules[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeMoleculeNotFound, "molecule not found")
	}
	return m, nil
}

func (f *fakeMolRepo) FindByIDs(_ context.Context, ids []common.ID) (map[common.ID]*domainMol.Molecule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[common.ID]*domainMol.Molecule{}
	for _, id := range ids {
		if m, ok := f.molecules[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeMolRepo) MergeProperties(_ context.Context, m *domainMol.Molecule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeConflicts > 0 {
		f.mergeConflicts--
		return apperrors.ConcurrentModification("molecule version mismatch")
	}
	f.merges++
	f.molecules[m.ID] = m
	return nil
}

type engineFunc func(ctx context.Context, req engine.Request) (engine.Result, error)

func (fn engineFunc) Predict(ctx context.Context, req engine.Request) (engine.Result, error) {
	return fn(ctx, req)
}

type fakeLock struct {
	acquired bool
	unlocked bool
}

func (l *fakeLock) Lock(context.Context) error { return nil }
func (l *fakeLock) TryLock(context.Context) (bool, error) {
	return l.acquired, nil
}
func (l *fakeLock) Unlock(context.Context) error {
	l.unlocked = true
	return nil
}
func (l *fakeLock) Extend(context.Context, time.Duration) (bool, error) { return true, nil }

type fakeLockFactory struct {
	lock *fakeLock
	name string
}

func (f *fakeLockFactory) NewMutex(name string, _ ...redis.LockOption) redis.DistributedLock {
	f.name = name
	return f.lock
}

type fakePublisher struct {
	mu        sync.Mutex
	topics    []string
	envelopes []*kafka.EventEnvelope
}

func (f *fakePublisher) Publish(context.Context, *common.ProducerMessage) error { return nil }

func (f *fakePublisher) PublishEnvelope(_ context.Context, topic string, _ string, env *kafka.EventEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakePublisher) published(topic string) []*kafka.EventEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*kafka.EventEnvelope
	for i, tp := range f.topics {
		if tp == topic {
			out = append(out, f.envelopes[i])
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func testConfig() Config {
	return Config{
		Properties:  []string{"logp", "solubility"},
		BatchSize:   10,
		Concurrency: 2,
		Policy:      domainPred.NewRetryPolicy(3, time.Second, 2, time.Minute, 0),
	}
}

func validTestMolecule(t *testing.T, structure string) *domainMol.Molecule {
	t.Helper()
	m := domainMol.New(structure, mtypes.FormatSMILES, "user-1")
	require.NoError(t, m.MarkValid("ck-"+structure))
	return m
}

func allValues(ids []common.ID) engine.Result {
	out := engine.Result{}
	for _, id := range ids {
		out[string(id)] = map[string]float64{"logp": 1.5, "solubility": 42}
	}
	return out
}

type env struct {
	jobs      *fakeJobRepo
	molecules *fakeMolRepo
	publisher *fakePublisher
	lock      *fakeLock
	locks     *fakeLockFactory
}

func newEnv() *env {
	lock := &fakeLock{acquired: true}
	return &env{
		jobs:      newFakeJobRepo(),
		molecules: newFakeMolRepo(),
		publisher: &fakePublisher{},
		lock:      lock,
		locks:     &fakeLockFactory{lock: lock},
	}
}

func (e *env) service(cfg Config, predict engineFunc) Service {
	return NewService(cfg, e.jobs, e.molecules, predict, e.locks, e.publisher,
		prometheus.NewNopAppMetrics(), logging.NewNopLogger())
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule
// ─────────────────────────────────────────────────────────────────────────────

func TestScheduleFormsChunkedJobs(t *testing.T) {
	e := newEnv()
	cfg := testConfig()
	cfg.BatchSize = 2

	var ids []common.ID
	for _, s := range []string{"CCO", "CCN", "CCC", "CCCl", "CCBr"} {
		m := validTestMolecule(t, s)
		e.molecules.add(m)
		ids = append(ids, m.ID)
	}

	svc := e.service(cfg, nil)
	require.NoError(t, svc.Schedule(context.Background(), ids))

	queued := e.jobs.byState(domainPred.StateQueued)
	require.Len(t, queued, 3)
	total := 0
	for _, job := range queued {
		assert.LessOrEqual(t, len(job.MoleculeIDs), 2)
		assert.Equal(t, cfg.Properties, job.Properties)
		total += len(job.MoleculeIDs)
	}
	assert.Equal(t, 5, total)
}

func TestScheduleSkipsActiveAndCompleteMolecules(t *testing.T) {
	e := newEnv()
	cfg := testConfig()

	busy := validTestMolecule(t, "CCO")
	done := validTestMolecule(t, "CCN")
	fresh := validTestMolecule(t, "CCC")
	require.NoError(t, done.MergeProperties(map[string]float64{"logp": 1, "solubility": 2}))
	for _, m := range []*domainMol.Molecule{busy, done, fresh} {
		e.molecules.add(m)
	}

	existing, err := domainPred.NewJob([]common.ID{busy.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), existing))

	svc := e.service(cfg, nil)
	require.NoError(t, svc.Schedule(context.Background(), []common.ID{busy.ID, done.ID, fresh.ID}))

	queued := e.jobs.byState(domainPred.StateQueued)
	require.Len(t, queued, 2)
	var created *domainPred.Job
	for _, job := range queued {
		if job.ID != existing.ID {
			created = job
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, []common.ID{fresh.ID}, created.MoleculeIDs)

	// Placeholders registered for the freshly scheduled molecule.
	assert.Contains(t, fresh.Properties, "logp")
	assert.Nil(t, fresh.Properties["logp"])
}

func TestScheduleWithNoEligibleMoleculesCreatesNothing(t *testing.T) {
	e := newEnv()
	svc := e.service(testConfig(), nil)
	require.NoError(t, svc.Schedule(context.Background(), nil))
	assert.Empty(t, e.jobs.jobs)
}

// ─────────────────────────────────────────────────────────────────────────────
// RunCycle
// ─────────────────────────────────────────────────────────────────────────────

func TestRunCycleDispatchesAndMergesValues(t *testing.T) {
	e := newEnv()
	cfg := testConfig()

	m1 := validTestMolecule(t, "CCO")
	m2 := validTestMolecule(t, "CCN")
	e.molecules.add(m1)
	e.molecules.add(m2)
	ids := []common.ID{m1.ID, m2.ID}

	job, err := domainPred.NewJob(ids, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(_ context.Context, req engine.Request) (engine.Result, error) {
		assert.Len(t, req.Structures, 2)
		assert.Equal(t, cfg.Properties, req.Properties)
		return allValues(ids), nil
	})

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Succeeded)

	stored, err := e.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainPred.StateSucceeded, stored.State)
	assert.Equal(t, 1, stored.Attempts)

	assert.True(t, m1.HasAllProperties(cfg.Properties))
	assert.True(t, m2.HasAllProperties(cfg.Properties))
	assert.Len(t, e.publisher.published(kafka.TopicMoleculePropertiesMerged), 2)
	assert.True(t, e.lock.unlocked)
	assert.Equal(t, redis.SchedulerCycleLock, e.locks.name)
}

func TestRunCycleRequeuesFailedCall(t *testing.T) {
	e := newEnv()
	cfg := testConfig()

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return nil, apperrors.ExternalCallFailure("engine overloaded")
	})

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)
	assert.Zero(t, report.Failed)

	stored, err := e.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainPred.StateQueued, stored.State)
	assert.Equal(t, 1, stored.Attempts)
	assert.True(t, stored.NextRetryAt.After(time.Now()))
	assert.Contains(t, stored.LastError, "engine overloaded")
	assert.Empty(t, e.publisher.published(kafka.TopicPredictionJobFailed))
}

func TestRunCycleExhaustsRetriesAndPublishesFailure(t *testing.T) {
	e := newEnv()
	cfg := testConfig()
	cfg.Policy = domainPred.NewRetryPolicy(1, time.Second, 2, time.Minute, 0)

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return nil, apperrors.ExternalCallFailure("engine down")
	})

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, err := e.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainPred.StateFailed, stored.State)

	failures := e.publisher.published(kafka.TopicPredictionJobFailed)
	require.Len(t, failures, 1)
	var payload kafka.PredictionJobFailedPayload
	require.NoError(t, failures[0].DecodePayload(&payload))
	assert.Equal(t, string(job.ID), payload.JobID)
	assert.Contains(t, payload.LastError, "engine down")
}

func TestRunCycleSkipsWhenLockIsHeld(t *testing.T) {
	e := newEnv()
	e.lock.acquired = false

	svc := e.service(testConfig(), func(context.Context, engine.Request) (engine.Result, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	})

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Dispatched)
}

func TestRunCycleHoldsLockForConfiguredTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	factory := redis.NewLockFactory(client, logging.NewNopLogger())

	e := newEnv()
	cfg := testConfig()
	cfg.CycleLockTTL = 90 * time.Second

	// The lock TTL is read mid-cycle, while the scheduling step holds it.
	var observed time.Duration
	e.jobs.onFindDue = func() {
		observed = mr.TTL("cromkt:lock:" + redis.SchedulerCycleLock)
	}

	svc := NewService(cfg, e.jobs, e.molecules, nil, factory, e.publisher,
		prometheus.NewNopAppMetrics(), logging.NewNopLogger())

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 90*time.Second, observed)
	assert.False(t, mr.Exists("cromkt:lock:"+redis.SchedulerCycleLock))
}

func TestMergeRetriesOnVersionRace(t *testing.T) {
	e := newEnv()
	cfg := testConfig()

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	e.molecules.mergeConflicts = 1

	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return allValues([]common.ID{m.ID}), nil
	})

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, e.molecules.merges)
	assert.True(t, m.HasAllProperties(cfg.Properties))
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrigger
// ─────────────────────────────────────────────────────────────────────────────

func TestRetriggerCreatesFreshJobForFailedJob(t *testing.T) {
	e := newEnv()
	cfg := testConfig()
	cfg.Policy = domainPred.NewRetryPolicy(1, time.Second, 2, time.Minute, 0)

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return nil, apperrors.ExternalCallFailure("engine down")
	})
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	newID, err := svc.Retrigger(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, newID)

	fresh, err := e.jobs.FindByID(context.Background(), newID)
	require.NoError(t, err)
	assert.Equal(t, domainPred.StateQueued, fresh.State)
	assert.Equal(t, []common.ID{m.ID}, fresh.MoleculeIDs)
	assert.Zero(t, fresh.Attempts)
}

func TestRetriggerTwiceQueuesOneLiveJob(t *testing.T) {
	e := newEnv()
	cfg := testConfig()
	cfg.Policy = domainPred.NewRetryPolicy(1, time.Second, 2, time.Minute, 0)

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return nil, apperrors.ExternalCallFailure("engine down")
	})
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	_, err = svc.Retrigger(context.Background(), job.ID)
	require.NoError(t, err)

	// The molecule is already covered by the fresh job, so the second
	// retrigger must not queue it again.
	_, err = svc.Retrigger(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))

	queued := e.jobs.byState(domainPred.StateQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, []common.ID{m.ID}, queued[0].MoleculeIDs)
}

func TestRetriggerExcludesMoleculesInLiveJobs(t *testing.T) {
	e := newEnv()
	cfg := testConfig()
	cfg.Policy = domainPred.NewRetryPolicy(1, time.Second, 2, time.Minute, 0)

	m1 := validTestMolecule(t, "CCO")
	m2 := validTestMolecule(t, "CCN")
	e.molecules.add(m1)
	e.molecules.add(m2)

	failed, err := domainPred.NewJob([]common.ID{m1.ID, m2.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), failed))

	svc := e.service(cfg, func(context.Context, engine.Request) (engine.Result, error) {
		return nil, apperrors.ExternalCallFailure("engine down")
	})
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	live, err := domainPred.NewJob([]common.ID{m2.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), live))

	newID, err := svc.Retrigger(context.Background(), failed.ID)
	require.NoError(t, err)

	fresh, err := e.jobs.FindByID(context.Background(), newID)
	require.NoError(t, err)
	assert.Equal(t, []common.ID{m1.ID}, fresh.MoleculeIDs)
}

func TestRetriggerRejectsLiveJob(t *testing.T) {
	e := newEnv()
	cfg := testConfig()

	m := validTestMolecule(t, "CCO")
	e.molecules.add(m)
	job, err := domainPred.NewJob([]common.ID{m.ID}, cfg.Properties, cfg.BatchSize)
	require.NoError(t, err)
	require.NoError(t, e.jobs.Save(context.Background(), job))

	svc := e.service(cfg, nil)
	_, err = svc.Retrigger(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
}

func TestRetriggerUnknownJob(t *testing.T) {
	e := newEnv()
	svc := e.service(testConfig(), nil)
	_, err := svc.Retrigger(context.Background(), common.NewID())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePredictionJobNotFound))
}
