package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/directory/internal/aggregatelock"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/ownership"
	"github.com/smallbiznis/directory/internal/business/validation"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/imagepipeline"
	"github.com/smallbiznis/directory/internal/invalidation"
	"github.com/smallbiznis/directory/internal/listingstate"
	obslogger "github.com/smallbiznis/directory/internal/observability/logger"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/observability/tracing"
	"github.com/smallbiznis/directory/internal/principal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImageResolver turns submitted image strings into durable URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, ownerID, businessID snowflake.ID, images []string) (imagepipeline.Resolution, error)
	Discard(ctx context.Context, keys []string)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	Validator   *validation.Validator
	Gate        *ownership.Gate
	Images      ImageResolver
	Locker      aggregatelock.Locker
	Invalidator invalidation.Invalidator
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	validator   *validation.Validator
	gate        *ownership.Gate
	images      ImageResolver
	locker      aggregatelock.Locker
	invalidator invalidation.Invalidator
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	atomic      bool
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("business.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		validator:   p.Validator,
		gate:        p.Gate,
		images:      p.Images,
		locker:      p.Locker,
		invalidator: p.Invalidator,
		metrics:     p.Metrics,
		tracer:      otel.Tracer("directory/business"),
		atomic:      p.Config.Profile.AtomicWrites,
	}
}

// Create persists a new aggregate owned by the requesting principal. The
// listing starts pending review.
func (s *Service) Create(ctx context.Context, input domain.ProfileInput) (domain.Business, error) {
	ctx, span := s.tracer.Start(ctx, "business.create")
	defer span.End()

	start := time.Now()
	business, err := s.create(ctx, input)
	s.finish(ctx, span, "create", business.ID, start, err)
	return business, err
}

func (s *Service) create(ctx context.Context, input domain.ProfileInput) (domain.Business, error) {
	profile, err := s.validator.Validate(input)
	if err != nil {
		return domain.Business{}, domain.AtStage(domain.StageValidate, err)
	}
	ownerID, ok := principal.UserIDFromContext(ctx)
	if !ok {
		return domain.Business{}, domain.AtStage(domain.StageOwnership, domain.ErrAuthenticationRequired)
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	business := domain.Business{
		ID:        id,
		OwnerID:   ownerID,
		Slug:      makeSlug(profile.Name, id),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProfile(&business, profile)

	var uploaded []string
	err = s.write(ctx, func(db *gorm.DB) error {
		if err := s.repo.Insert(withStage(ctx, domain.StageProfile), db, &business); err != nil {
			return domain.DatabaseError(domain.StageProfile, err)
		}
		if err := s.writeChildren(ctx, db, id, profile, false); err != nil {
			return err
		}
		if len(profile.Images) == 0 {
			return nil
		}
		keys, err := s.writeImages(ctx, db, ownerID, id, profile.Images, false)
		uploaded = keys
		return err
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return domain.Business{}, err
	}

	s.notify(ctx, id)
	return business, nil
}

// Update replaces the aggregate of business id. Only the recorded owner may
// update; omitted collections are left untouched and empty ones are cleared.
func (s *Service) Update(ctx context.Context, id string, input domain.ProfileInput) (domain.Business, error) {
	ctx, span := s.tracer.Start(ctx, "business.update")
	defer span.End()

	start := time.Now()
	business, err := s.update(ctx, id, input)
	s.finish(ctx, span, "update", business.ID, start, err)
	return business, err
}

func (s *Service) update(ctx context.Context, id string, input domain.ProfileInput) (domain.Business, error) {
	businessID, err := parseID(id)
	if err != nil {
		return domain.Business{}, domain.AtStage(domain.StageValidate, err)
	}
	profile, err := s.validator.Validate(input)
	if err != nil {
		return domain.Business{}, domain.AtStage(domain.StageValidate, err)
	}

	owner, err := s.gate.Require(withStage(ctx, domain.StageOwnership), businessID)
	if err != nil {
		return domain.Business{}, domain.AtStage(domain.StageOwnership, err)
	}

	release, err := s.locker.Acquire(ctx, aggregatelock.BusinessKey(businessID))
	if err != nil {
		if errors.Is(err, aggregatelock.ErrBusy) {
			err = fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
		}
		return domain.Business{}, domain.AtStage(domain.StageLock, err)
	}
	defer release()

	current, err := s.repo.FindByID(withStage(ctx, domain.StageProfile), s.db, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Business{}, domain.AtStage(domain.StageProfile, err)
		}
		return domain.Business{}, domain.DatabaseError(domain.StageProfile, err)
	}

	updated := *current
	applyProfile(&updated, profile)
	updated.UpdatedAt = s.clock.Now()

	var uploaded []string
	err = s.write(ctx, func(db *gorm.DB) error {
		if err := s.repo.UpdateProfile(withStage(ctx, domain.StageProfile), db, &updated); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.AtStage(domain.StageProfile, err)
			}
			return domain.DatabaseError(domain.StageProfile, err)
		}
		if err := s.writeChildren(ctx, db, businessID, profile, true); err != nil {
			return err
		}
		if profile.Images == nil {
			return nil
		}
		keys, err := s.writeImages(ctx, db, owner.OwnerID, businessID, profile.Images, true)
		uploaded = keys
		return err
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return domain.Business{}, err
	}

	s.notify(ctx, businessID)
	return updated, nil
}

// Get reads the full aggregate. Listings that are not publicly visible are
// only returned to their owner.
func (s *Service) Get(ctx context.Context, id string) (domain.Aggregate, error) {
	ctx, span := s.tracer.Start(ctx, "business.get")
	defer span.End()

	businessID, err := parseID(id)
	if err != nil {
		return domain.Aggregate{}, err
	}

	business, err := s.repo.FindByID(ctx, s.db, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Aggregate{}, err
		}
		return domain.Aggregate{}, domain.DatabaseError(domain.StageProfile, err)
	}

	state := listingstate.FromFlags(domain.StateFlags{
		IsActive:           business.IsActive,
		DeactivatedByOwner: business.DeactivatedByOwner,
	})
	if requester, ok := principal.UserIDFromContext(ctx); !state.Visible() && (!ok || requester != business.OwnerID) {
		return domain.Aggregate{}, domain.ErrNotFound
	}

	agg := domain.Aggregate{Business: *business}
	if agg.Hours, err = s.repo.ListHours(ctx, s.db, businessID); err != nil {
		return domain.Aggregate{}, domain.DatabaseError(domain.StageHours, err)
	}
	if agg.SocialLinks, err = s.repo.ListSocialLinks(ctx, s.db, businessID); err != nil {
		return domain.Aggregate{}, domain.DatabaseError(domain.StageSocialLinks, err)
	}
	attrs, err := s.repo.ListAttributes(ctx, s.db, businessID)
	if err != nil {
		return domain.Aggregate{}, domain.DatabaseError(domain.StageAttributes, err)
	}
	if agg.Images, err = s.repo.ListImages(ctx, s.db, businessID); err != nil {
		return domain.Aggregate{}, domain.DatabaseError(domain.StageImageRows, err)
	}

	agg.Attributes = make([]domain.AttributeView, 0, len(attrs))
	for _, row := range attrs {
		agg.Attributes = append(agg.Attributes, domain.AttributeView{
			AttributeID: row.AttributeID,
			Value:       domain.DecodeAttributeValue(row.ValueType, row.Value).Interface(),
			Text:        row.Value,
		})
	}
	return agg, nil
}

// write runs fn in one transaction when atomic writes are enabled. Otherwise
// each statement commits on its own.
func (s *Service) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	if !s.atomic {
		return fn(s.db)
	}
	err := s.db.WithContext(ctx).Transaction(fn)
	if err != nil && domain.StageOf(err) == "" {
		return domain.DatabaseError(domain.StageCommit, err)
	}
	return err
}

// writeChildren writes every submitted child collection. With replace set,
// existing rows of a submitted collection are deleted first.
func (s *Service) writeChildren(ctx context.Context, db *gorm.DB, businessID snowflake.ID, profile domain.NormalizedProfile, replace bool) error {
	if profile.Hours != nil {
		stageCtx := withStage(ctx, domain.StageHours)
		if replace {
			if err := s.repo.DeleteHours(stageCtx, db, businessID); err != nil {
				return domain.DatabaseError(domain.StageHours, err)
			}
		}
		if err := s.repo.InsertHours(stageCtx, db, s.hourRows(businessID, profile.Hours)); err != nil {
			return domain.DatabaseError(domain.StageHours, err)
		}
	}

	if profile.SocialLinks != nil {
		stageCtx := withStage(ctx, domain.StageSocialLinks)
		if replace {
			if err := s.repo.DeleteSocialLinks(stageCtx, db, businessID); err != nil {
				return domain.DatabaseError(domain.StageSocialLinks, err)
			}
		}
		if err := s.repo.InsertSocialLinks(stageCtx, db, s.socialRows(businessID, profile.SocialLinks)); err != nil {
			return domain.DatabaseError(domain.StageSocialLinks, err)
		}
	}

	if profile.Attributes != nil {
		stageCtx := withStage(ctx, domain.StageAttributes)
		if replace {
			if err := s.repo.DeleteAttributes(stageCtx, db, businessID); err != nil {
				return domain.DatabaseError(domain.StageAttributes, err)
			}
		}
		if err := s.repo.InsertAttributes(stageCtx, db, s.attributeRows(businessID, profile.Attributes)); err != nil {
			return domain.DatabaseError(domain.StageAttributes, err)
		}
	}
	return nil
}

// writeImages resolves images and writes one row per resolved URL. It returns
// the object keys uploaded on the way, even when the row write fails.
func (s *Service) writeImages(ctx context.Context, db *gorm.DB, ownerID, businessID snowflake.ID, images []string, replace bool) ([]string, error) {
	resolved, err := s.images.Resolve(withStage(ctx, domain.StageImages), ownerID, businessID, images)
	if err != nil {
		return nil, domain.AtStage(domain.StageImages, err)
	}

	stageCtx := withStage(ctx, domain.StageImageRows)
	if replace {
		if err := s.repo.DeleteImages(stageCtx, db, businessID); err != nil {
			return resolved.Keys, domain.DatabaseError(domain.StageImageRows, err)
		}
	}

	rows := make([]domain.BusinessImage, 0, len(resolved.URLs))
	for i, url := range resolved.URLs {
		rows = append(rows, domain.BusinessImage{
			ID:         s.genID.Generate(),
			BusinessID: businessID,
			URL:        url,
			IsPrimary:  i == 0,
			Position:   i,
		})
	}
	if err := s.repo.InsertImages(stageCtx, db, rows); err != nil {
		return resolved.Keys, domain.DatabaseError(domain.StageImageRows, err)
	}
	return resolved.Keys, nil
}

func (s *Service) hourRows(businessID snowflake.ID, hours []domain.HoursInput) []domain.BusinessHour {
	rows := make([]domain.BusinessHour, 0, len(hours))
	for _, h := range hours {
		rows = append(rows, domain.BusinessHour{
			ID:         s.genID.Generate(),
			BusinessID: businessID,
			DayOfWeek:  h.Day,
			OpenTime:   h.Open,
			CloseTime:  h.Close,
			IsClosed:   h.Closed,
		})
	}
	return rows
}

func (s *Service) socialRows(businessID snowflake.ID, links []domain.SocialInput) []domain.SocialLink {
	rows := make([]domain.SocialLink, 0, len(links))
	for _, l := range links {
		rows = append(rows, domain.SocialLink{
			ID:         s.genID.Generate(),
			BusinessID: businessID,
			Platform:   l.Platform,
			URL:        l.URL,
		})
	}
	return rows
}

func (s *Service) attributeRows(businessID snowflake.ID, attrs []domain.Attribute) []domain.AttributeRow {
	rows := make([]domain.AttributeRow, 0, len(attrs))
	for _, a := range attrs {
		rows = append(rows, domain.AttributeRow{
			ID:          s.genID.Generate(),
			BusinessID:  businessID,
			AttributeID: a.AttributeID,
			Value:       a.Value.Normalize(),
			ValueType:   a.Value.Type,
		})
	}
	return rows
}

// discard removes blobs uploaded by a failed atomic write. Non-atomic writes
// keep whatever they produced.
func (s *Service) discard(ctx context.Context, keys []string) {
	if !s.atomic || len(keys) == 0 {
		return
	}
	s.images.Discard(context.WithoutCancel(ctx), keys)
}

func (s *Service) notify(ctx context.Context, businessID snowflake.ID) {
	if err := s.invalidator.Notify(ctx, businessID); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("view invalidation failed",
			zap.String("business_id", businessID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, operation string, businessID snowflake.ID, start time.Time, err error) {
	stage := domain.StageOf(err)
	if err != nil && stage == "" {
		stage = "unknown"
	}
	s.metrics.RecordProfileWrite(ctx, operation, stage, time.Since(start))

	log := obslogger.WithContext(ctx, s.log).With(zap.String("operation", operation))
	if businessID != 0 {
		log = obslogger.WithBusiness(log, businessID.String())
		span.SetAttributes(tracing.SafeAttributes(attribute.String("business_id", businessID.String()))...)
	}
	if err == nil {
		log.Info("business aggregate written")
		return
	}

	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, stage)
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrAuthenticationRequired),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnsupportedFormat):
		log.Debug("business aggregate rejected", zap.String("stage", stage), zap.Error(err))
	default:
		log.Error("business aggregate write failed", zap.String("stage", stage), zap.Error(err))
	}
}

func applyProfile(b *domain.Business, p domain.NormalizedProfile) {
	b.Name = p.Name
	b.Description = p.Description
	b.Address = p.Address
	b.City = p.City
	b.State = p.State
	b.Zip = p.Zip
	b.Phone = p.Phone
	b.Email = p.Email
	b.Website = p.Website
	b.CategoryID = p.CategoryID
	b.SubcategoryID = p.SubcategoryID
	b.PriceRange = p.PriceRange
	b.AdditionalInfo = p.AdditionalInfo
}

// makeSlug builds a readable, unique slug from the name and the row id.
func makeSlug(name string, id snowflake.ID) string {
	base := slug.Make(name)
	if base == "" {
		base = "business"
	}
	return base + "-" + id.Base36()
}

func withStage(ctx context.Context, stage string) context.Context {
	trace.SpanFromContext(ctx).AddEvent(stage)
	return obslogger.WithStage(ctx, stage)
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
