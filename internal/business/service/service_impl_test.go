package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/aggregatelock"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/ownership"
	"github.com/smallbiznis/directory/internal/business/repository"
	"github.com/smallbiznis/directory/internal/business/validation"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/imagepipeline"
	"github.com/smallbiznis/directory/internal/objectstore"
	"github.com/smallbiznis/directory/internal/principal"
	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ownerID snowflake.ID = 9001

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Notify(ctx context.Context, businessID snowflake.ID) error {
	args := m.Called(ctx, businessID)
	return args.Error(0)
}

type testEnv struct {
	svc   *Service
	db    *gorm.DB
	repo  domain.Repository
	store *objectstore.Memory
	inv   *mockInvalidator
}

func newEnv(t *testing.T, atomic bool) testEnv {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	store := objectstore.NewMemory("https://objects.test")
	inv := &mockInvalidator{}
	inv.On("Notify", mock.Anything, mock.Anything).Return(nil)

	cfg := config.Config{}
	cfg.Profile.AtomicWrites = atomic

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     testutil.Node(t),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Config:    cfg,
		Repo:      repo,
		Validator: validation.New(),
		Gate:      ownership.New(db, repo),
		Images: imagepipeline.New(imagepipeline.Params{
			Store:  store,
			Policy: imagepipeline.StaticPolicy(imagepipeline.DefaultPolicy()),
			Log:    zap.NewNop(),
		}),
		Locker:      aggregatelock.NewLocalLocker(time.Second),
		Invalidator: inv,
	}).(*Service)

	return testEnv{svc: svc, db: db, repo: repo, store: store, inv: inv}
}

func ownerCtx() context.Context {
	return principal.WithUserID(context.Background(), ownerID)
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func fullInput() domain.ProfileInput {
	website := "https://bluedoor.example"
	return domain.ProfileInput{
		Name:          "Blue Door Bakery",
		Description:   "Sourdough and pastries",
		Address:       "12 Market St",
		City:          "Portland",
		State:         "OR",
		Zip:           "97201",
		Phone:         "+1 503 555 0100",
		Email:         "hello@bluedoor.example",
		Website:       &website,
		CategoryID:    "100",
		SubcategoryID: "101",
		PriceRange:    2,
		BusinessHours: []domain.HoursInput{
			{Day: 1, Open: "08:00", Close: "17:00"},
			{Day: 0, Closed: true},
		},
		SocialMedia: []domain.SocialInput{
			{Platform: "instagram", URL: "https://instagram.com/bluedoor"},
			{Platform: "facebook", URL: "https://facebook.com/bluedoor"},
			{Platform: "tiktok", URL: ""},
		},
		Attributes: []domain.AttributeInput{
			{AttributeID: "300", Value: "patio"},
			{AttributeID: "301", Value: []any{"wifi", "parking"}},
		},
		Images: []string{"https://cdn.example.com/front.jpg", "https://cdn.example.com/inside.jpg"},
	}
}

func minimalInput() domain.ProfileInput {
	in := fullInput()
	in.Website = nil
	in.BusinessHours = []domain.HoursInput{}
	in.SocialMedia = []domain.SocialInput{}
	in.Attributes = []domain.AttributeInput{}
	in.Images = []string{}
	return in
}

type snapshot struct {
	Business    domain.Business
	Hours       []string
	SocialLinks []string
	Attributes  []string
	Images      []string
}

// snap captures the aggregate without generated ids or write bookkeeping.
func snap(t *testing.T, env testEnv, id snowflake.ID) snapshot {
	t.Helper()
	ctx := context.Background()
	b, err := env.repo.FindByID(ctx, env.db, id)
	require.NoError(t, err)
	b.Version, b.UpdatedAt, b.CreatedAt = 0, time.Time{}, time.Time{}

	out := snapshot{Business: *b}
	hours, err := env.repo.ListHours(ctx, env.db, id)
	require.NoError(t, err)
	for _, h := range hours {
		out.Hours = append(out.Hours, strings.Join([]string{strconv.Itoa(h.DayOfWeek), h.OpenTime, h.CloseTime, boolText(h.IsClosed)}, "|"))
	}
	links, err := env.repo.ListSocialLinks(ctx, env.db, id)
	require.NoError(t, err)
	for _, l := range links {
		out.SocialLinks = append(out.SocialLinks, l.Platform+"|"+l.URL)
	}
	attrs, err := env.repo.ListAttributes(ctx, env.db, id)
	require.NoError(t, err)
	for _, a := range attrs {
		out.Attributes = append(out.Attributes, a.AttributeID.String()+"|"+a.Value+"|"+string(a.ValueType))
	}
	images, err := env.repo.ListImages(ctx, env.db, id)
	require.NoError(t, err)
	for _, img := range images {
		out.Images = append(out.Images, img.URL+"|"+boolText(img.IsPrimary))
	}
	return out
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestCreate_WritesFullAggregate(t *testing.T) {
	env := newEnv(t, true)

	business, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	assert.Equal(t, ownerID, business.OwnerID)
	assert.False(t, business.IsActive)
	assert.False(t, business.DeactivatedByOwner)
	assert.True(t, strings.HasPrefix(business.Slug, "blue-door-bakery-"))
	assert.EqualValues(t, 1, business.Version)

	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_hours", business.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_social_links", business.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_attributes", business.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_images", business.ID))

	s := snap(t, env, business.ID)
	assert.Equal(t, []string{
		"https://cdn.example.com/front.jpg|true",
		"https://cdn.example.com/inside.jpg|false",
	}, s.Images)
	assert.Contains(t, s.Attributes, "301|wifi,parking|list")
	assert.Contains(t, s.Attributes, "300|patio|text")

	env.inv.AssertCalled(t, "Notify", mock.Anything, business.ID)
}

func TestCreate_MinimalWritesNoChildren(t *testing.T) {
	env := newEnv(t, true)

	business, err := env.svc.Create(ownerCtx(), minimalInput())
	require.NoError(t, err)

	stored, err := env.repo.FindByID(context.Background(), env.db, business.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Nil(t, stored.Website)
	for _, table := range []string{"business_hours", "business_social_links", "business_attributes", "business_images"} {
		assert.EqualValues(t, 0, testutil.Count(t, env.db, table, business.ID), table)
	}
}

func TestCreate_RequiresPrincipal(t *testing.T) {
	env := newEnv(t, true)

	_, err := env.svc.Create(context.Background(), fullInput())
	assert.ErrorIs(t, err, domain.ErrAuthenticationRequired)

	var n int64
	require.NoError(t, env.db.Table("businesses").Count(&n).Error)
	assert.Zero(t, n)
	env.inv.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestCreate_ValidationHasNoSideEffects(t *testing.T) {
	env := newEnv(t, true)
	in := fullInput()
	in.Email = "nope"
	in.PriceRange = 0
	in.Images = []string{pngDataURL(t)}

	_, err := env.svc.Create(ownerCtx(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StageValidate, domain.StageOf(err))

	var verrs *validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has("email"))
	assert.True(t, verrs.Has("priceRange"))

	var n int64
	require.NoError(t, env.db.Table("businesses").Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, env.store.Keys())
}

func TestCreate_UploadsEmbeddedImages(t *testing.T) {
	env := newEnv(t, true)
	in := minimalInput()
	in.Images = []string{pngDataURL(t), "https://cdn.example.com/menu.jpg"}

	business, err := env.svc.Create(ownerCtx(), in)
	require.NoError(t, err)

	images, err := env.repo.ListImages(context.Background(), env.db, business.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].IsPrimary)
	assert.True(t, strings.HasPrefix(images[0].URL, "https://objects.test/9001/"+business.ID.String()+"/"))
	assert.False(t, images[1].IsPrimary)
	assert.Equal(t, "https://cdn.example.com/menu.jpg", images[1].URL)
	assert.Len(t, env.store.Keys(), 1)
}

func TestCreate_AtomicRollsBackAndDiscardsBlobs(t *testing.T) {
	env := newEnv(t, true)
	require.NoError(t, env.db.Exec("DROP TABLE business_images").Error)

	in := fullInput()
	in.Images = []string{pngDataURL(t)}
	_, err := env.svc.Create(ownerCtx(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDatabase)
	assert.Equal(t, domain.StageImageRows, domain.StageOf(err))

	var n int64
	require.NoError(t, env.db.Table("businesses").Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, env.db.Table("business_hours").Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, env.store.Keys())
}

func TestCreate_NonAtomicKeepsCommittedSteps(t *testing.T) {
	env := newEnv(t, false)
	require.NoError(t, env.db.Exec("DROP TABLE business_images").Error)

	in := fullInput()
	in.Images = []string{pngDataURL(t)}
	_, err := env.svc.Create(ownerCtx(), in)
	require.Error(t, err)
	assert.Equal(t, domain.StageImageRows, domain.StageOf(err))

	var n int64
	require.NoError(t, env.db.Table("businesses").Count(&n).Error)
	assert.EqualValues(t, 1, n)
	require.NoError(t, env.db.Table("business_hours").Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestUpdate_IsIdempotent(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), minimalInput())
	require.NoError(t, err)

	in := fullInput()
	in.Name = "Blue Door Bakery & Cafe"
	first, err := env.svc.Update(ownerCtx(), created.ID.String(), in)
	require.NoError(t, err)
	afterFirst := snap(t, env, created.ID)

	second, err := env.svc.Update(ownerCtx(), created.ID.String(), in)
	require.NoError(t, err)
	afterSecond := snap(t, env, created.ID)

	assert.Equal(t, afterFirst, afterSecond)
	assert.Equal(t, "Blue Door Bakery & Cafe", afterSecond.Business.Name)
	assert.Equal(t, created.Slug, afterSecond.Business.Slug)
	assert.EqualValues(t, 2, first.Version)
	assert.EqualValues(t, 3, second.Version)
}

func TestUpdate_NonOwnerWritesNothing(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)
	before := snap(t, env, created.ID)

	in := minimalInput()
	in.Name = "Hijacked"
	in.Images = []string{pngDataURL(t)}
	stranger := principal.WithUserID(context.Background(), ownerID+1)
	_, err = env.svc.Update(stranger, created.ID.String(), in)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.Equal(t, before, snap(t, env, created.ID))
	stored, err := env.repo.FindByID(context.Background(), env.db, created.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
	assert.Empty(t, env.store.Keys())
}

func TestUpdate_EmptyArraysClearAndNilArraysKeep(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	in := fullInput()
	in.BusinessHours = []domain.HoursInput{}
	in.SocialMedia = nil
	in.Attributes = nil
	in.Images = nil
	_, err = env.svc.Update(ownerCtx(), created.ID.String(), in)
	require.NoError(t, err)

	assert.EqualValues(t, 0, testutil.Count(t, env.db, "business_hours", created.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_social_links", created.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_attributes", created.ID))
	assert.EqualValues(t, 2, testutil.Count(t, env.db, "business_images", created.ID))

	in.Images = []string{}
	_, err = env.svc.Update(ownerCtx(), created.ID.String(), in)
	require.NoError(t, err)
	assert.EqualValues(t, 0, testutil.Count(t, env.db, "business_images", created.ID))
}

func TestUpdate_MixedImages(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	in := fullInput()
	dataURL := pngDataURL(t)
	in.Images = []string{dataURL, "https://cdn.example.com/inside.jpg"}
	_, err = env.svc.Update(ownerCtx(), created.ID.String(), in)
	require.NoError(t, err)

	images, err := env.repo.ListImages(context.Background(), env.db, created.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.NotEqual(t, dataURL, images[0].URL)
	assert.True(t, strings.HasPrefix(images[0].URL, "https://objects.test/"))
	assert.True(t, images[0].IsPrimary)
	assert.Equal(t, "https://cdn.example.com/inside.jpg", images[1].URL)
	assert.False(t, images[1].IsPrimary)
}

func TestUpdate_BadImageRollsBackAtomicWrite(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)
	before := snap(t, env, created.ID)

	in := fullInput()
	in.Name = "Renamed"
	in.BusinessHours = []domain.HoursInput{{Day: 3, Open: "10:00", Close: "11:00"}}
	in.Images = []string{pngDataURL(t), "data:image/png;base64,!!!notbase64!!!"}
	_, err = env.svc.Update(ownerCtx(), created.ID.String(), in)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, domain.StageImages, domain.StageOf(err))

	assert.Equal(t, before, snap(t, env, created.ID))
	assert.Empty(t, env.store.Keys())
}

func TestUpdate_BadImageKeepsEarlierStepsWhenNotAtomic(t *testing.T) {
	env := newEnv(t, false)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	in := fullInput()
	in.Name = "Renamed"
	in.BusinessHours = []domain.HoursInput{{Day: 3, Open: "10:00", Close: "11:00"}}
	in.Images = []string{"data:image/png,missing-base64-marker"}
	_, err = env.svc.Update(ownerCtx(), created.ID.String(), in)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	after := snap(t, env, created.ID)
	assert.Equal(t, "Renamed", after.Business.Name)
	assert.Len(t, after.Hours, 1)
	assert.Len(t, after.Images, 2)
}

func TestUpdate_UnknownAndInvalidIDs(t *testing.T) {
	env := newEnv(t, true)

	_, err := env.svc.Update(ownerCtx(), "424242", fullInput())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Update(ownerCtx(), "not-an-id", fullInput())
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestUpdate_LockBusy(t *testing.T) {
	env := newEnv(t, true)
	env.svc.locker = aggregatelock.NewLocalLocker(10 * time.Millisecond)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	release, err := env.svc.locker.Acquire(context.Background(), aggregatelock.BusinessKey(created.ID))
	require.NoError(t, err)
	defer release()

	_, err = env.svc.Update(ownerCtx(), created.ID.String(), fullInput())
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, domain.StageLock, domain.StageOf(err))
}

func TestWrite_InvalidationFailureDoesNotFail(t *testing.T) {
	env := newEnv(t, true)
	failing := &mockInvalidator{}
	failing.On("Notify", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	env.svc.invalidator = failing

	business, err := env.svc.Create(ownerCtx(), minimalInput())
	require.NoError(t, err)
	failing.AssertCalled(t, "Notify", mock.Anything, business.ID)
}

func TestGet_ReturnsAggregateToOwnerOnlyUntilActive(t *testing.T) {
	env := newEnv(t, true)
	created, err := env.svc.Create(ownerCtx(), fullInput())
	require.NoError(t, err)

	_, err = env.svc.Get(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	agg, err := env.svc.Get(ownerCtx(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, agg.ID)
	assert.Len(t, agg.Hours, 2)
	assert.Len(t, agg.SocialLinks, 2)
	require.Len(t, agg.Attributes, 2)
	assert.Len(t, agg.Images, 2)

	values := map[snowflake.ID]any{}
	for _, a := range agg.Attributes {
		values[a.AttributeID] = a.Value
	}
	assert.Equal(t, "patio", values[300])
	assert.Equal(t, []string{"wifi", "parking"}, values[301])

	moved, err := env.repo.UpdateState(context.Background(), env.db, created.ID,
		domain.StateFlags{}, domain.StateFlags{IsActive: true})
	require.NoError(t, err)
	require.True(t, moved)

	_, err = env.svc.Get(context.Background(), created.ID.String())
	assert.NoError(t, err)
}

func TestMakeSlug(t *testing.T) {
	assert.Equal(t, "cafe-deja-vu-"+snowflake.ID(36).Base36(), makeSlug("Café Déjà Vu", 36))
	assert.Equal(t, "business-1", makeSlug("!!!", 1))
}
