package ownership

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/principal"
	"gorm.io/gorm"
)

// Result is the outcome of an ownership check.
type Result struct {
	IsOwner     bool
	OwnerID     snowflake.ID
	RequesterID snowflake.ID
}

// Gate compares the requesting principal with the recorded owner of a business.
type Gate struct {
	db   *gorm.DB
	repo domain.Repository
}

func New(db *gorm.DB, repo domain.Repository) *Gate {
	return &Gate{db: db, repo: repo}
}

// Verify reads the recorded owner of businessID. It never writes.
func (g *Gate) Verify(ctx context.Context, businessID snowflake.ID) (Result, error) {
	requester, ok := principal.UserIDFromContext(ctx)
	if !ok {
		return Result{}, domain.ErrAuthenticationRequired
	}

	owner, err := g.repo.FindOwnerID(ctx, g.db, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, domain.DatabaseError(domain.StageOwnership, err)
	}

	return Result{
		IsOwner:     owner == requester,
		OwnerID:     owner,
		RequesterID: requester,
	}, nil
}

// Require is Verify that turns a foreign owner into ErrPermissionDenied.
func (g *Gate) Require(ctx context.Context, businessID snowflake.ID) (Result, error) {
	res, err := g.Verify(ctx, businessID)
	if err != nil {
		return res, err
	}
	if !res.IsOwner {
		return res, domain.ErrPermissionDenied
	}
	return res, nil
}
