package listingstate

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/ownership"
	"github.com/smallbiznis/directory/internal/business/repository"
	"github.com/smallbiznis/directory/internal/invalidation"
	"github.com/smallbiznis/directory/internal/principal"
	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApply(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
		ok   bool
	}{
		{PendingReview, EventApprove, Active, true},
		{PendingReview, EventDeactivate, PendingReview, false},
		{PendingReview, EventReactivate, PendingReview, false},
		{Active, EventDeactivate, DeactivatedByOwner, true},
		{Active, EventApprove, Active, false},
		{DeactivatedByOwner, EventReactivate, Active, true},
		{DeactivatedByOwner, EventApprove, DeactivatedByOwner, false},
	}
	for _, tc := range cases {
		got, err := tc.from.Apply(tc.ev)
		if tc.ok {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.Equal(t, tc.to, got, "%s + %s", tc.from, tc.ev)
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	for _, s := range []State{PendingReview, Active, DeactivatedByOwner} {
		assert.Equal(t, s, FromFlags(s.Flags()))
	}
	assert.Equal(t, PendingReview, FromFlags(domain.StateFlags{DeactivatedByOwner: true}))
	assert.True(t, Active.Visible())
	assert.False(t, DeactivatedByOwner.Visible())
}

const ownerID snowflake.ID = 500

func setup(t *testing.T) (*Service, *gorm.DB, snowflake.ID) {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	id := testutil.Node(t).Generate()

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(context.Background(), db, &domain.Business{
		ID: id, OwnerID: ownerID, Slug: "shop-" + id.String(), Name: "Shop",
		Description: "d", Address: "a", City: "c", State: "s", Zip: "z", Phone: "p", Email: "e@x.io",
		CategoryID: 1, SubcategoryID: 2, PriceRange: 1, Version: 1, CreatedAt: now, UpdatedAt: now,
	}))

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        repo,
		Gate:        ownership.New(db, repo),
		Invalidator: invalidation.NewLogInvalidator(zap.NewNop(), nil),
	})
	return svc, db, id
}

func flagsOf(t *testing.T, db *gorm.DB, id snowflake.ID) domain.StateFlags {
	t.Helper()
	b, err := repository.Provide().FindByID(context.Background(), db, id)
	require.NoError(t, err)
	return domain.StateFlags{IsActive: b.IsActive, DeactivatedByOwner: b.DeactivatedByOwner}
}

func TestService_Lifecycle(t *testing.T) {
	svc, db, id := setup(t)
	ownerCtx := principal.WithUserID(context.Background(), ownerID)

	_, err := svc.Deactivate(ownerCtx, id.String())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	state, err := svc.Approve(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, Active, state)
	assert.Equal(t, domain.StateFlags{IsActive: true}, flagsOf(t, db, id))

	state, err = svc.Deactivate(ownerCtx, id.String())
	require.NoError(t, err)
	assert.Equal(t, DeactivatedByOwner, state)
	assert.Equal(t, domain.StateFlags{IsActive: true, DeactivatedByOwner: true}, flagsOf(t, db, id))

	state, err = svc.Reactivate(ownerCtx, id.String())
	require.NoError(t, err)
	assert.Equal(t, Active, state)
}

func TestService_OwnerEventsRequireOwner(t *testing.T) {
	svc, db, id := setup(t)
	_, err := svc.Approve(context.Background(), id.String())
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), id.String())
	assert.ErrorIs(t, err, domain.ErrAuthenticationRequired)

	_, err = svc.Deactivate(principal.WithUserID(context.Background(), ownerID+1), id.String())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.StateFlags{IsActive: true}, flagsOf(t, db, id))
}

func TestService_UnknownBusiness(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Approve(context.Background(), "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Approve(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
