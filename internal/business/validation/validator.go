package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/directory/internal/business/domain"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validator turns untrusted profile payloads into normalized profiles.
type Validator struct {
	validate *validator.Validate
}

// profileSchema mirrors domain.ProfileInput with validation tags. Field names
// come from the json tags so error paths match the payload.
type profileSchema struct {
	Name          string         `json:"name" validate:"required"`
	Description   string         `json:"description" validate:"required"`
	Address       string         `json:"address" validate:"required"`
	City          string         `json:"city" validate:"required"`
	State         string         `json:"state" validate:"required"`
	Zip           string         `json:"zip" validate:"required"`
	Phone         string         `json:"phone" validate:"required"`
	Email         string         `json:"email" validate:"required,email"`
	Website       *string        `json:"website" validate:"omitempty,webaddr"`
	CategoryID    string         `json:"categoryId" validate:"required,snowflake"`
	SubcategoryID string         `json:"subcategoryId" validate:"required,snowflake"`
	PriceRange    int            `json:"priceRange" validate:"min=1,max=4"`
	BusinessHours []hoursSchema  `json:"businessHours" validate:"dive"`
	SocialMedia   []socialSchema `json:"socialMedia" validate:"dive"`
	Attributes    []attrSchema   `json:"attributes" validate:"dive"`
	Images        []string       `json:"images" validate:"dive,required"`
}

type hoursSchema struct {
	Day    int    `json:"day" validate:"min=0,max=6"`
	Open   string `json:"open" validate:"required_if=Closed false,omitempty,clock"`
	Close  string `json:"close" validate:"required_if=Closed false,omitempty,clock"`
	Closed bool   `json:"closed"`
}

type socialSchema struct {
	Platform string `json:"platform" validate:"required_with=URL"`
	URL      string `json:"url" validate:"omitempty,webaddr"`
}

type attrSchema struct {
	AttributeID string `json:"attributeId" validate:"required,snowflake"`
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("webaddr", func(fl validator.FieldLevel) bool {
		return IsWebURL(fl.Field().String())
	})
	_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
		id, err := snowflake.ParseString(fl.Field().String())
		return err == nil && id > 0
	})
	return &Validator{validate: v}
}

// Validate checks every field of raw and reports all failures at once.
func (v *Validator) Validate(raw domain.ProfileInput) (domain.NormalizedProfile, error) {
	schema := toSchema(raw)
	errs := &Errors{}

	if err := v.validate.Struct(schema); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return domain.NormalizedProfile{}, err
		}
		for _, fe := range fieldErrs {
			errs.add(fieldPath(fe), fe.Tag(), message(fe))
		}
	}

	seenDays := make(map[int]int, len(schema.BusinessHours))
	for i, h := range schema.BusinessHours {
		if prev, ok := seenDays[h.Day]; ok {
			errs.add(fmt.Sprintf("businessHours[%d].day", i), "unique",
				fmt.Sprintf("duplicates the day given at businessHours[%d]", prev))
			continue
		}
		seenDays[h.Day] = i
	}

	attrs := make([]domain.Attribute, 0, len(raw.Attributes))
	for i, a := range raw.Attributes {
		value, err := domain.ParseAttributeValue(a.Value)
		if err != nil {
			errs.add(fmt.Sprintf("attributes[%d].value", i), "attribute_value",
				"must be a string, number, boolean or list of strings")
			continue
		}
		id, _ := snowflake.ParseString(strings.TrimSpace(a.AttributeID))
		attrs = append(attrs, domain.Attribute{AttributeID: id, Value: value})
	}

	if len(errs.Fields) > 0 {
		return domain.NormalizedProfile{}, errs
	}
	return normalize(schema, raw, attrs), nil
}

func toSchema(raw domain.ProfileInput) profileSchema {
	s := profileSchema{
		Name:          strings.TrimSpace(raw.Name),
		Description:   strings.TrimSpace(raw.Description),
		Address:       strings.TrimSpace(raw.Address),
		City:          strings.TrimSpace(raw.City),
		State:         strings.TrimSpace(raw.State),
		Zip:           strings.TrimSpace(raw.Zip),
		Phone:         strings.TrimSpace(raw.Phone),
		Email:         strings.TrimSpace(raw.Email),
		Website:       trimOptional(raw.Website),
		CategoryID:    strings.TrimSpace(raw.CategoryID),
		SubcategoryID: strings.TrimSpace(raw.SubcategoryID),
		PriceRange:    raw.PriceRange,
	}
	for _, img := range raw.Images {
		s.Images = append(s.Images, strings.TrimSpace(img))
	}
	for _, h := range raw.BusinessHours {
		s.BusinessHours = append(s.BusinessHours, hoursSchema{
			Day:    h.Day,
			Open:   strings.TrimSpace(h.Open),
			Close:  strings.TrimSpace(h.Close),
			Closed: h.Closed,
		})
	}
	for _, sm := range raw.SocialMedia {
		s.SocialMedia = append(s.SocialMedia, socialSchema{
			Platform: strings.TrimSpace(sm.Platform),
			URL:      strings.TrimSpace(sm.URL),
		})
	}
	for _, a := range raw.Attributes {
		s.Attributes = append(s.Attributes, attrSchema{AttributeID: strings.TrimSpace(a.AttributeID)})
	}
	return s
}

func normalize(s profileSchema, raw domain.ProfileInput, attrs []domain.Attribute) domain.NormalizedProfile {
	category, _ := snowflake.ParseString(s.CategoryID)
	subcategory, _ := snowflake.ParseString(s.SubcategoryID)

	out := domain.NormalizedProfile{
		Name:           s.Name,
		Description:    s.Description,
		Address:        s.Address,
		City:           s.City,
		State:          s.State,
		Zip:            s.Zip,
		Phone:          s.Phone,
		Email:          s.Email,
		Website:        s.Website,
		CategoryID:     category,
		SubcategoryID:  subcategory,
		PriceRange:     s.PriceRange,
		AdditionalInfo: trimOptional(raw.AdditionalInfo),
	}

	if raw.BusinessHours != nil {
		out.Hours = make([]domain.HoursInput, 0, len(s.BusinessHours))
		for _, h := range s.BusinessHours {
			entry := domain.HoursInput{Day: h.Day, Closed: h.Closed}
			if !h.Closed {
				entry.Open, entry.Close = h.Open, h.Close
			}
			out.Hours = append(out.Hours, entry)
		}
	}
	if raw.SocialMedia != nil {
		out.SocialLinks = make([]domain.SocialInput, 0, len(s.SocialMedia))
		for _, sm := range s.SocialMedia {
			if sm.URL == "" {
				continue
			}
			out.SocialLinks = append(out.SocialLinks, domain.SocialInput{Platform: sm.Platform, URL: sm.URL})
		}
	}
	if raw.Attributes != nil {
		out.Attributes = attrs
	}
	if raw.Images != nil {
		out.Images = make([]string, 0, len(s.Images))
		out.Images = append(out.Images, s.Images...)
	}
	return out
}

// IsWebURL reports whether raw is an absolute http or https URL with a host.
func IsWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "webaddr":
		return "must be an absolute http(s) URL"
	case "snowflake":
		return "must be a valid id"
	case "clock":
		return "must use the HH:MM 24-hour format"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
