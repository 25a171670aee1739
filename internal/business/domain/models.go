package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Business is the profile row of the aggregate.
type Business struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID            snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Slug               string       `gorm:"not null;uniqueIndex" json:"slug"`
	Name               string       `gorm:"not null" json:"name"`
	Description        string       `gorm:"not null" json:"description"`
	Address            string       `gorm:"not null" json:"address"`
	City               string       `gorm:"not null" json:"city"`
	State              string       `gorm:"not null" json:"state"`
	Zip                string       `gorm:"not null" json:"zip"`
	Phone              string       `gorm:"not null" json:"phone"`
	Email              string       `gorm:"not null" json:"email"`
	Website            *string      `json:"website,omitempty"`
	CategoryID         snowflake.ID `gorm:"not null;index" json:"category_id"`
	SubcategoryID      snowflake.ID `gorm:"not null;index" json:"subcategory_id"`
	PriceRange         int          `gorm:"not null" json:"price_range"`
	AdditionalInfo     *string      `json:"additional_info,omitempty"`
	IsActive           bool         `gorm:"not null;default:false" json:"is_active"`
	DeactivatedByOwner bool         `gorm:"not null;default:false" json:"deactivated_by_owner"`
	Version            int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (Business) TableName() string { return "businesses" }

// BusinessHour is one day of the weekly schedule. DayOfWeek is 0 (Sunday) to 6.
type BusinessHour struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;uniqueIndex:idx_business_hours_day,priority:1" json:"business_id"`
	DayOfWeek  int          `gorm:"not null;uniqueIndex:idx_business_hours_day,priority:2" json:"day_of_week"`
	OpenTime   string       `json:"open_time"`
	CloseTime  string       `json:"close_time"`
	IsClosed   bool         `gorm:"not null;default:false" json:"is_closed"`
}

func (BusinessHour) TableName() string { return "business_hours" }

type SocialLink struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;index" json:"business_id"`
	Platform   string       `gorm:"not null" json:"platform"`
	URL        string       `gorm:"column:url;not null" json:"url"`
}

func (SocialLink) TableName() string { return "business_social_links" }

// AttributeRow stores an attribute value in its canonical text form. ValueType
// keeps the submitted shape so the value can be rebuilt on read.
type AttributeRow struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID  snowflake.ID `gorm:"not null;index" json:"business_id"`
	AttributeID snowflake.ID `gorm:"not null" json:"attribute_id"`
	Value       string       `gorm:"not null" json:"value"`
	ValueType   ValueType    `gorm:"not null;default:'text'" json:"value_type"`
}

func (AttributeRow) TableName() string { return "business_attributes" }

// BusinessImage is one hosted image. Only the image submitted first is primary.
type BusinessImage struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;index" json:"business_id"`
	URL        string       `gorm:"column:url;not null" json:"url"`
	AltText    *string      `json:"alt_text,omitempty"`
	IsPrimary  bool         `gorm:"not null;default:false" json:"is_primary"`
	Position   int          `gorm:"not null" json:"position"`
}

func (BusinessImage) TableName() string { return "business_images" }

// Aggregate is the profile row with its four child collections.
type Aggregate struct {
	Business
	Hours       []BusinessHour  `json:"business_hours"`
	SocialLinks []SocialLink    `json:"social_media"`
	Attributes  []AttributeView `json:"attributes"`
	Images      []BusinessImage `json:"images"`
}

// AttributeView is an attribute with its typed value restored.
type AttributeView struct {
	AttributeID snowflake.ID `json:"attribute_id"`
	Value       any          `json:"value"`
	Text        string       `json:"text"`
}
