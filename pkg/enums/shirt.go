package enums

import "fmt"

// ShirtCategory maps to the shirt_category enum in Postgres.
type ShirtCategory string

const (
	ShirtCategoryMen   ShirtCategory = "men"
	ShirtCategoryWomen ShirtCategory = "women"
	ShirtCategoryKids  ShirtCategory = "kids"
)

var validShirtCategories = []ShirtCategory{
	ShirtCategoryMen,
	ShirtCategoryWomen,
	ShirtCategoryKids,
}

// IsValid checks whether the given category matches the canonical enum.
func (c ShirtCategory) IsValid() bool {
	for _, candidate := range validShirtCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseShirtCategory converts raw strings into ShirtCategory.
func ParseShirtCategory(value string) (ShirtCategory, error) {
	for _, candidate := range validShirtCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shirt category %q", value)
}
