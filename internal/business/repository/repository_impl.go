package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/business/domain"
	pkgdb "github.com/smallbiznis/directory/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *domain.Business) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO businesses (
			id, owner_id, slug, name, description, address, city, state, zip, phone, email,
			website, category_id, subcategory_id, price_range, additional_info,
			is_active, deactivated_by_owner, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Slug, b.Name, b.Description, b.Address, b.City, b.State, b.Zip,
		b.Phone, b.Email, b.Website, b.CategoryID, b.SubcategoryID, b.PriceRange,
		b.AdditionalInfo, b.IsActive, b.DeactivatedByOwner, b.Version, b.CreatedAt, b.UpdatedAt,
	).Error
}

// UpdateProfile writes the editable columns and bumps the stored version.
// Owner, slug and activation flags are left alone; b receives the stored
// version and flags so state changes made since b was read are not lost.
func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, b *domain.Business) error {
	db = db.WithContext(ctx)
	result := db.Exec(
		`UPDATE businesses
		    SET name = ?, description = ?, address = ?, city = ?, state = ?, zip = ?,
		        phone = ?, email = ?, website = ?, category_id = ?, subcategory_id = ?,
		        price_range = ?, additional_info = ?, version = version + 1, updated_at = ?
		  WHERE id = ?`,
		b.Name, b.Description, b.Address, b.City, b.State, b.Zip,
		b.Phone, b.Email, b.Website, b.CategoryID, b.SubcategoryID,
		b.PriceRange, b.AdditionalInfo, b.UpdatedAt,
		b.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}

	var stored struct {
		Version            int64
		IsActive           bool
		DeactivatedByOwner bool
	}
	err := db.Raw(
		`SELECT version, is_active, deactivated_by_owner FROM businesses WHERE id = ?`, b.ID,
	).Scan(&stored).Error
	if err != nil {
		return err
	}
	b.Version = stored.Version
	b.IsActive = stored.IsActive
	b.DeactivatedByOwner = stored.DeactivatedByOwner
	return nil
}

// UpdateState moves the activation flags only when they still equal from.
func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.StateFlags) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE businesses
		    SET is_active = ?, deactivated_by_owner = ?, version = version + 1
		  WHERE id = ? AND is_active = ? AND deactivated_by_owner = ?`,
		to.IsActive, to.DeactivatedByOwner,
		id, from.IsActive, from.DeactivatedByOwner,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Business, error) {
	var b domain.Business
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, slug, name, description, address, city, state, zip, phone, email,
		        website, category_id, subcategory_id, price_range, additional_info,
		        is_active, deactivated_by_owner, version, created_at, updated_at
		   FROM businesses
		  WHERE id = ?`,
		id,
	).Scan(&b).Error
	if err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r *repo) FindOwnerID(ctx context.Context, db *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
	var row struct {
		ID      snowflake.ID
		OwnerID snowflake.ID
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id FROM businesses WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.ID == 0 {
		return 0, domain.ErrNotFound
	}
	return row.OwnerID, nil
}

func (r *repo) InsertHours(ctx context.Context, db *gorm.DB, rows []domain.BusinessHour) error {
	return insertRows(ctx, db, rows)
}

func (r *repo) DeleteHours(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error {
	return deleteByBusiness(ctx, db, "business_hours", businessID)
}

func (r *repo) ListHours(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]domain.BusinessHour, error) {
	var items []domain.BusinessHour
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, day_of_week, open_time, close_time, is_closed
		   FROM business_hours
		  WHERE business_id = ?
		  ORDER BY day_of_week ASC`,
		businessID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertSocialLinks(ctx context.Context, db *gorm.DB, rows []domain.SocialLink) error {
	return insertRows(ctx, db, rows)
}

func (r *repo) DeleteSocialLinks(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error {
	return deleteByBusiness(ctx, db, "business_social_links", businessID)
}

func (r *repo) ListSocialLinks(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]domain.SocialLink, error) {
	var items []domain.SocialLink
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, platform, url
		   FROM business_social_links
		  WHERE business_id = ?
		  ORDER BY id ASC`,
		businessID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertAttributes(ctx context.Context, db *gorm.DB, rows []domain.AttributeRow) error {
	return insertRows(ctx, db, rows)
}

func (r *repo) DeleteAttributes(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error {
	return deleteByBusiness(ctx, db, "business_attributes", businessID)
}

func (r *repo) ListAttributes(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]domain.AttributeRow, error) {
	var items []domain.AttributeRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, attribute_id, value, value_type
		   FROM business_attributes
		  WHERE business_id = ?
		  ORDER BY id ASC`,
		businessID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertImages(ctx context.Context, db *gorm.DB, rows []domain.BusinessImage) error {
	return insertRows(ctx, db, rows)
}

func (r *repo) DeleteImages(ctx context.Context, db *gorm.DB, businessID snowflake.ID) error {
	return deleteByBusiness(ctx, db, "business_images", businessID)
}

func (r *repo) ListImages(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]domain.BusinessImage, error) {
	var items []domain.BusinessImage
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, url, alt_text, is_primary, position
		   FROM business_images
		  WHERE business_id = ?
		  ORDER BY position ASC`,
		businessID,
	).Scan(&items).Error
	return items, err
}

// insertRows writes rows in one multi-row INSERT. A unique violation means a
// concurrent writer replaced the same collection.
func insertRows[T any](ctx context.Context, db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	err := db.WithContext(ctx).Create(&rows).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
	}
	return err
}

func deleteByBusiness(ctx context.Context, db *gorm.DB, table string, businessID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM `+table+` WHERE business_id = ?`,
		businessID,
	).Error
}
