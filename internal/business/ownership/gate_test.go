package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/repository"
	"github.com/smallbiznis/directory/internal/principal"
	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, gate *Gate, owner snowflake.ID) snowflake.ID {
	t.Helper()
	id := testutil.Node(t).Generate()
	now := time.Now().UTC()
	require.NoError(t, gate.repo.Insert(context.Background(), gate.db, &domain.Business{
		ID: id, OwnerID: owner, Slug: id.String(), Name: "n", Description: "d", Address: "a",
		City: "c", State: "s", Zip: "z", Phone: "p", Email: "e@x.io", CategoryID: 1, SubcategoryID: 2,
		PriceRange: 1, Version: 1, CreatedAt: now, UpdatedAt: now,
	}))
	return id
}

func TestGate_Verify(t *testing.T) {
	db := testutil.OpenDB(t)
	gate := New(db, repository.Provide())
	id := seed(t, gate, 77)

	res, err := gate.Verify(principal.WithUserID(context.Background(), 77), id)
	require.NoError(t, err)
	assert.True(t, res.IsOwner)
	assert.EqualValues(t, 77, res.OwnerID)
	assert.EqualValues(t, 77, res.RequesterID)

	res, err = gate.Verify(principal.WithUserID(context.Background(), 78), id)
	require.NoError(t, err)
	assert.False(t, res.IsOwner)
	assert.EqualValues(t, 77, res.OwnerID)
}

func TestGate_Require(t *testing.T) {
	db := testutil.OpenDB(t)
	gate := New(db, repository.Provide())
	id := seed(t, gate, 77)

	_, err := gate.Require(principal.WithUserID(context.Background(), 78), id)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = gate.Require(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrAuthenticationRequired)

	_, err = gate.Require(principal.WithUserID(context.Background(), 77), id+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGate_DatabaseFailure(t *testing.T) {
	db := testutil.OpenDB(t)
	gate := New(db, repository.Provide())
	require.NoError(t, db.Exec("DROP TABLE businesses").Error)

	_, err := gate.Verify(principal.WithUserID(context.Background(), 1), 10)
	assert.ErrorIs(t, err, domain.ErrDatabase)
	assert.Equal(t, domain.StageOwnership, domain.StageOf(err))
}
