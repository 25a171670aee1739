package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueType string

const (
	ValueText   ValueType = "text"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
	ValueList   ValueType = "list"
)

// ListDelimiter joins list values in the text column.
const ListDelimiter = ","

var ErrInvalidAttributeValue = errors.New("invalid_attribute_value")

// AttributeValue is a tagged union over the accepted attribute shapes.
type AttributeValue struct {
	Type   ValueType
	Text   string
	Number float64
	Bool   bool
	List   []string
}

// ParseAttributeValue accepts the shapes produced by encoding/json decoding
// into an interface: string, float64 (or json.Number), bool, []any of strings.
func ParseAttributeValue(raw any) (AttributeValue, error) {
	switch typed := raw.(type) {
	case string:
		return AttributeValue{Type: ValueText, Text: typed}, nil
	case bool:
		return AttributeValue{Type: ValueBool, Bool: typed}, nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return AttributeValue{}, ErrInvalidAttributeValue
		}
		return AttributeValue{Type: ValueNumber, Number: typed}, nil
	case int:
		return AttributeValue{Type: ValueNumber, Number: float64(typed)}, nil
	case int64:
		return AttributeValue{Type: ValueNumber, Number: float64(typed)}, nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return AttributeValue{}, ErrInvalidAttributeValue
		}
		return AttributeValue{Type: ValueNumber, Number: f}, nil
	case []string:
		return AttributeValue{Type: ValueList, List: append([]string(nil), typed...)}, nil
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return AttributeValue{}, fmt.Errorf("%w: list items must be strings", ErrInvalidAttributeValue)
			}
			items = append(items, s)
		}
		return AttributeValue{Type: ValueList, List: items}, nil
	default:
		return AttributeValue{}, ErrInvalidAttributeValue
	}
}

// Normalize renders the value as the single text stored in the value column.
// Lists are joined with ListDelimiter, so items containing it do not round-trip.
func (v AttributeValue) Normalize() string {
	switch v.Type {
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueList:
		return strings.Join(v.List, ListDelimiter)
	default:
		return v.Text
	}
}

// Interface returns the value in its JSON shape.
func (v AttributeValue) Interface() any {
	switch v.Type {
	case ValueBool:
		return v.Bool
	case ValueNumber:
		return v.Number
	case ValueList:
		return v.List
	default:
		return v.Text
	}
}

// DecodeAttributeValue rebuilds a value from its stored columns. Unknown or
// inconsistent types fall back to text.
func DecodeAttributeValue(valueType ValueType, text string) AttributeValue {
	switch valueType {
	case ValueBool:
		if b, err := strconv.ParseBool(text); err == nil {
			return AttributeValue{Type: ValueBool, Bool: b}
		}
	case ValueNumber:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return AttributeValue{Type: ValueNumber, Number: f}
		}
	case ValueList:
		if text == "" {
			return AttributeValue{Type: ValueList, List: []string{}}
		}
		return AttributeValue{Type: ValueList, List: strings.Split(text, ListDelimiter)}
	}
	return AttributeValue{Type: ValueText, Text: text}
}
