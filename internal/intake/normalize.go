package intake

import (
	"strings"
	"time"
)

// Spreadsheet column layout. Rows come in as positional cells with no header.
const (
	colFirstName = iota
	colLastName
	colEmail
	colPhone
	colBirthDate
	colGender
	colDistance
	colShirtCategory
	colShirtType
	colShirtSize

	columnCount
)

// Candidate is the transient, unvalidated representation of one source row.
type Candidate struct {
	RowIndex      int64
	FirstName     string
	LastName      string
	Email         string
	Phone         *string
	BirthDate     *time.Time
	Gender        *string
	DistanceName  string
	ShirtCategory *string
	ShirtType     *string
	ShirtSize     *string
}

// birthDateFormats are tried in order; the first parse wins.
var birthDateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
}

var genderAliases = map[string]string{
	"m":         "male",
	"male":      "male",
	"hombre":    "male",
	"masculino": "male",
	"f":         "female",
	"female":    "female",
	"mujer":     "female",
	"femenino":  "female",
}

var shirtCategoryAliases = map[string]string{
	"men":      "men",
	"man":      "men",
	"hombre":   "men",
	"women":    "women",
	"woman":    "women",
	"mujer":    "women",
	"kids":     "kids",
	"kid":      "kids",
	"child":    "kids",
	"children": "kids",
	"infantil": "kids",
}

// ParseRow maps positional cells into a Candidate. Missing trailing cells are
// treated as empty; unmatched categorical values pass through unchanged.
func ParseRow(cells []string, rowIndex int64) Candidate {
	return Candidate{
		RowIndex:      rowIndex,
		FirstName:     cellAt(cells, colFirstName),
		LastName:      cellAt(cells, colLastName),
		Email:         NormalizeEmail(cellAt(cells, colEmail)),
		Phone:         optional(NormalizePhone(cellAt(cells, colPhone))),
		BirthDate:     ParseBirthDate(cellAt(cells, colBirthDate)),
		Gender:        optional(NormalizeGender(cellAt(cells, colGender))),
		DistanceName:  cellAt(cells, colDistance),
		ShirtCategory: optional(NormalizeShirtCategory(cellAt(cells, colShirtCategory))),
		ShirtType:     optional(cellAt(cells, colShirtType)),
		ShirtSize:     optional(strings.ToUpper(cellAt(cells, colShirtSize))),
	}
}

// IsBlankRow reports whether every cell in the row is empty or whitespace.
func IsBlankRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// HasShirtRequest reports whether the row asked for any shirt attribute.
func (c Candidate) HasShirtRequest() bool {
	return c.ShirtCategory != nil || c.ShirtType != nil || c.ShirtSize != nil
}

// NormalizeEmail lowercases and trims the raw address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseBirthDate tries the known formats and gives up to nil.
func ParseBirthDate(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	for _, format := range birthDateFormats {
		if parsed, err := time.Parse(format, trimmed); err == nil {
			return &parsed
		}
	}
	return nil
}

// NormalizePhone strips separators, keeping a leading plus sign.
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeGender canonicalizes known aliases; unknown values pass through.
func NormalizeGender(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := genderAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// NormalizeShirtCategory canonicalizes known aliases; unknown values pass through.
func NormalizeShirtCategory(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := shirtCategoryAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
