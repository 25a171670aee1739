package domain

import "github.com/bwmarrin/snowflake"

// ProfileInput is the untrusted aggregate payload accepted by create and update.
// A nil slice means the collection was not submitted.
type ProfileInput struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Address        string           `json:"address"`
	City           string           `json:"city"`
	State          string           `json:"state"`
	Zip            string           `json:"zip"`
	Phone          string           `json:"phone"`
	Email          string           `json:"email"`
	Website        *string          `json:"website,omitempty"`
	CategoryID     string           `json:"categoryId"`
	SubcategoryID  string           `json:"subcategoryId"`
	PriceRange     int              `json:"priceRange"`
	AdditionalInfo *string          `json:"additionalInfo,omitempty"`
	BusinessHours  []HoursInput     `json:"businessHours"`
	SocialMedia    []SocialInput    `json:"socialMedia,omitempty"`
	Attributes     []AttributeInput `json:"attributes,omitempty"`
	Images         []string         `json:"images"`
}

type HoursInput struct {
	Day    int    `json:"day"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

type SocialInput struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// AttributeInput carries a JSON-decoded value: string, number, bool or []string.
type AttributeInput struct {
	AttributeID string `json:"attributeId"`
	Value       any    `json:"value"`
}

// NormalizedProfile is a validated, normalized ProfileInput. Slices keep the nil versus
// empty distinction of the input; SocialLinks never contains empty urls.
type NormalizedProfile struct {
	Name           string
	Description    string
	Address        string
	City           string
	State          string
	Zip            string
	Phone          string
	Email          string
	Website        *string
	CategoryID     snowflake.ID
	SubcategoryID  snowflake.ID
	PriceRange     int
	AdditionalInfo *string
	Hours          []HoursInput
	SocialLinks    []SocialInput
	Attributes     []Attribute
	Images         []string
}

type Attribute struct {
	AttributeID snowflake.ID
	Value       AttributeValue
}
