package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, business *Business) error
	UpdateProfile(ctx context.Context, db *gorm.DB, business *Business) error
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to StateFlags) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Business, error)
	FindOwnerID(ctx context.Context, db *gorm.DB, id snowflake.ID) (snowflake.ID, error)

	InsertHours(ctx context.Context, db *gorm.DB, rows []BusinessHour) error
	DeleteHours(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error
	ListHours(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]BusinessHour, error)

	InsertSocialLinks(ctx context.Context, db *gorm.DB, rows []SocialLink) error
	DeleteSocialLinks(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error
	ListSocialLinks(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]SocialLink, error)

	InsertAttributes(ctx context.Context, db *gorm.DB, rows []AttributeRow) error
	DeleteAttributes(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error
	ListAttributes(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]AttributeRow, error)

	InsertImages(ctx context.Context, db *gorm.DB, rows []BusinessImage) error
	DeleteImages(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error
	ListImages(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]BusinessImage, error)
}

// StateFlags are the two activation columns of a business row.
type StateFlags struct {
	IsActive           bool
	DeactivatedByOwner bool
}
