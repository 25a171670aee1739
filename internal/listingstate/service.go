package listingstate

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/ownership"
	"github.com/smallbiznis/directory/internal/invalidation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service moves listings through the review and owner activation states.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	gate        *ownership.Gate
	invalidator invalidation.Invalidator
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	Gate        *ownership.Gate
	Invalidator invalidation.Invalidator
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("listingstate.service"),
		repo:        p.Repo,
		gate:        p.Gate,
		invalidator: p.Invalidator,
	}
}

// Approve publishes a listing after platform review. Callers authorize the
// reviewer before calling.
func (s *Service) Approve(ctx context.Context, id string) (State, error) {
	businessID, err := parseID(id)
	if err != nil {
		return "", err
	}
	return s.transition(ctx, businessID, EventApprove)
}

// Deactivate hides an active listing at its owner's request.
func (s *Service) Deactivate(ctx context.Context, id string) (State, error) {
	return s.ownerTransition(ctx, id, EventDeactivate)
}

// Reactivate shows a listing its owner deactivated.
func (s *Service) Reactivate(ctx context.Context, id string) (State, error) {
	return s.ownerTransition(ctx, id, EventReactivate)
}

func (s *Service) ownerTransition(ctx context.Context, id string, ev Event) (State, error) {
	businessID, err := parseID(id)
	if err != nil {
		return "", err
	}
	if _, err := s.gate.Require(ctx, businessID); err != nil {
		return "", err
	}
	return s.transition(ctx, businessID, ev)
}

func (s *Service) transition(ctx context.Context, businessID snowflake.ID, ev Event) (State, error) {
	business, err := s.repo.FindByID(ctx, s.db, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		return "", domain.DatabaseError(domain.StageProfile, err)
	}

	from := domain.StateFlags{IsActive: business.IsActive, DeactivatedByOwner: business.DeactivatedByOwner}
	current := FromFlags(from)
	next, err := current.Apply(ev)
	if err != nil {
		return current, err
	}

	moved, err := s.repo.UpdateState(ctx, s.db, businessID, from, next.Flags())
	if err != nil {
		return current, domain.DatabaseError(domain.StageProfile, err)
	}
	if !moved {
		return current, domain.ErrConcurrentUpdate
	}

	s.log.Info("listing state changed",
		zap.String("business_id", businessID.String()),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.String("event", string(ev)),
	)
	if err := s.invalidator.Notify(ctx, businessID); err != nil {
		s.log.Warn("view invalidation failed", zap.String("business_id", businessID.String()), zap.Error(err))
	}
	return next, nil
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
