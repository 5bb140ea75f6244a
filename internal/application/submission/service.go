// Package submission provides the application service for the CRO submission
// lifecycle: creating drafts, editing membership, recording quotes, and
// driving role-checked status transitions.
package submission

import (
	"context"
	"time"

	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainSub "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/submission"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/redis"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// submissionCacheTTL bounds staleness of the read-side cache.  Mutations
// invalidate eagerly; the TTL only covers missed invalidations.
const submissionCacheTTL = 5 * time.Minute

// CreateInput carries the fields for a new draft submission.
type CreateInput struct {
	CROService  string
	CROID       common.CROID
	MoleculeIDs []common.ID
	CreatedBy   common.UserID
}

// ListInput selects and pages a submission listing.  Exactly one of Status
// and CreatedBy must be set.
type ListInput struct {
	Status    subtypes.Status
	CreatedBy common.UserID
	Page      common.Pagination
}

// ListResult is one page of submissions.
type ListResult struct {
	Submissions []subtypes.SubmissionDTO
	Page        common.Pagination
}

// Service is the submission lifecycle entry point.
type Service interface {
	// Create validates the member molecules and persists a DRAFT submission.
	Create(ctx context.Context, input CreateInput) (*subtypes.SubmissionDTO, error)

	// Get returns one submission.
	Get(ctx context.Context, id common.ID) (*subtypes.SubmissionDTO, error)

	// List returns a page of submissions by status or creator.
	List(ctx context.Context, input ListInput) (*ListResult, error)

	// UpdateMolecules replaces the member list of a DRAFT submission.
	UpdateMolecules(ctx context.Context, id common.ID, moleculeIDs []common.ID) (*subtypes.SubmissionDTO, error)

	// SetQuote records the CRO's price and turnaround during review.
	SetQuote(ctx context.Context, id common.ID, role common.ActorRole, price float64, turnaroundDays int) (*subtypes.SubmissionDTO, error)

	// Transition moves the submission along one lifecycle edge on behalf of
	// role.  A lost optimistic-concurrency race surfaces as
	// ConcurrentModification; the caller re-reads and decides.
	Transition(ctx context.Context, id common.ID, to subtypes.Status, role common.ActorRole) (*subtypes.SubmissionDTO, error)

	// StatusCounts returns submission counts by status for the operator
	// surface.
	StatusCounts(ctx context.Context) (map[subtypes.Status]int64, error)
}

type serviceImpl struct {
	submissions domainSub.Repository
	molecules   domainMol.Repository
	cache       redis.Cache
	publisher   kafka.Publisher
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
	now         func() time.Time
}

// NewService wires the submission lifecycle service.  cache and publisher are
// optional.
func NewService(
	submissions domainSub.Repository,
	molecules domainMol.Repository,
	cache redis.Cache,
	publisher kafka.Publisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	return &serviceImpl{
		submissions: submissions,
		molecules:   molecules,
		cache:       cache,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger.Named("submission"),
		now:         time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create / read
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Create(ctx context.Context, input CreateInput) (*subtypes.SubmissionDTO, error) {
	if err := s.requireValidMolecules(ctx, input.MoleculeIDs); err != nil {
		return nil, err
	}

	sub, err := domainSub.New(input.CROService, input.CROID, input.CreatedBy, input.MoleculeIDs)
	if err != nil {
		return nil, err
	}
	if err := s.submissions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("submission created",
		logging.String("submission_id", string(sub.ID)),
		logging.String("cro_service", sub.CROService),
		logging.Int("molecules", len(sub.MoleculeIDs)),
	)
	dto := sub.ToDTO()
	return &dto, nil
}

func (s *serviceImpl) Get(ctx context.Context, id common.ID) (*subtypes.SubmissionDTO, error) {
	if s.cache != nil {
		var dto subtypes.SubmissionDTO
		err := s.cache.GetOrSet(ctx, redis.SubmissionKey(string(id)), &dto, submissionCacheTTL,
			func(ctx context.Context) (interface{}, error) {
				sub, err := s.submissions.FindByID(ctx, id)
				if err != nil {
					return nil, err
				}
				return sub.ToDTO(), nil
			})
		if err != nil {
			return nil, err
		}
		return &dto, nil
	}

	sub, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := sub.ToDTO()
	return &dto, nil
}

func (s *serviceImpl) List(ctx context.Context, input ListInput) (*ListResult, error) {
	var (
		subs  []*domainSub.Submission
		total int64
		err   error
	)
	switch {
	case input.Status != "":
		subs, total, err = s.submissions.ListByStatus(ctx, input.Status, input.Page)
	case input.CreatedBy != "":
		subs, total, err = s.submissions.ListByCreator(ctx, input.CreatedBy, input.Page)
	default:
		return nil, apperrors.InvalidParam("listing requires a status or a creator filter")
	}
	if err != nil {
		return nil, err
	}

	out := make([]subtypes.SubmissionDTO, len(subs))
	for i, sub := range subs {
		out[i] = sub.ToDTO()
	}
	page := input.Page
	page.Total = total
	return &ListResult{Submissions: out, Page: page}, nil
}

func (s *serviceImpl) StatusCounts(ctx context.Context) (map[subtypes.Status]int64, error) {
	return s.submissions.CountByStatus(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutations
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) UpdateMolecules(ctx context.Context, id common.ID, moleculeIDs []common.ID) (*subtypes.SubmissionDTO, error) {
	if err := s.requireValidMolecules(ctx, moleculeIDs); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, common.RolePharma, func(sub *domainSub.Submission) error {
		return sub.SetMolecules(moleculeIDs)
	})
}

func (s *serviceImpl) SetQuote(ctx context.Context, id common.ID, role common.ActorRole, price float64, turnaroundDays int) (*subtypes.SubmissionDTO, error) {
	if role != common.RoleCRO {
		return nil, apperrors.Newf(apperrors.ErrCodeRoleNotPermitted,
			"role %s may not set a quote", role)
	}
	return s.mutate(ctx, id, role, func(sub *domainSub.Submission) error {
		return sub.SetQuote(price, turnaroundDays)
	})
}

func (s *serviceImpl) Transition(ctx context.Context, id common.ID, to subtypes.Status, role common.ActorRole) (*subtypes.SubmissionDTO, error) {
	return s.mutate(ctx, id, role, func(sub *domainSub.Submission) error {
		return sub.Transition(to, role, s.now())
	})
}

// mutate loads the submission, applies fn, and writes it back under the
// aggregate's optimistic version check.  A lost race propagates to the caller
// unchanged; the service never retries a lifecycle mutation on its own.
func (s *serviceImpl) mutate(ctx context.Context, id common.ID, actor common.ActorRole, fn func(*domainSub.Submission) error) (*subtypes.SubmissionDTO, error) {
	sub, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sub); err != nil {
		return nil, err
	}
	if err := s.submissions.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.publishTransitions(ctx, actor, sub.Events())

	dto := sub.ToDTO()
	return &dto, nil
}

// requireValidMolecules verifies every molecule exists and passed validation.
func (s *serviceImpl) requireValidMolecules(ctx context.Context, ids []common.ID) error {
	if len(ids) == 0 {
		return apperrors.New(apperrors.ErrCodeEmptySubmission,
			"submission requires at least one molecule")
	}
	found, err := s.molecules.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		m, ok := found[id]
		if !ok {
			return apperrors.Newf(apperrors.ErrCodeMoleculeNotFound,
				"molecule %s does not exist", id)
		}
		if m.ValidationStatus != mtypes.ValidationValid {
			return apperrors.Newf(apperrors.ErrCodeInvalidState,
				"molecule %s is %s and cannot be submitted", id, m.ValidationStatus)
		}
	}
	return nil
}

func (s *serviceImpl) invalidate(ctx context.Context, id common.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, redis.SubmissionKey(string(id))); err != nil {
		s.metrics.CacheOpsTotal.WithLabelValues("submission_invalidate", "error").Inc()
		s.logger.Warn("failed to invalidate submission cache",
			logging.String("submission_id", string(id)), logging.Err(err))
	}
}

func (s *serviceImpl) publishTransitions(ctx context.Context, actor common.ActorRole, events []domainSub.TransitionedEvent) {
	for _, ev := range events {
		s.metrics.SubmissionTransitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
		s.logger.Info("submission transitioned",
			logging.String("submission_id", string(ev.SubmissionID)),
			logging.String("from", string(ev.From)),
			logging.String("to", string(ev.To)),
		)
		if s.publisher == nil {
			continue
		}
		env, err := kafka.NewEventEnvelope(ev.EventType(), "submission", kafka.SubmissionTransitionedPayload{
			SubmissionID: string(ev.SubmissionID),
			From:         string(ev.From),
			To:           string(ev.To),
			Actor:        string(actor),
			At:           ev.At,
		})
		if err != nil {
			s.logger.Warn("failed to build transition event", logging.Err(err))
			continue
		}
		if err := s.publisher.PublishEnvelope(ctx, kafka.TopicSubmissionTransitioned, string(ev.SubmissionID), env); err != nil {
			s.metrics.EventsPublished.WithLabelValues(kafka.TopicSubmissionTransitioned, "error").Inc()
			s.logger.Warn("failed to publish transition event", logging.Err(err))
			continue
		}
		s.metrics.EventsPublished.WithLabelValues(kafka.TopicSubmissionTransitioned, "ok").Inc()
	}
}
