package ledger

import (
	"fmt"
	"strings"
)

// Category is a short classification code such as "SR" or "BE".
type Category string

// CategoryDef pairs a category code with its human-readable label.
type CategoryDef struct {
	Code  Category
	Label string
}

// CategorySet is an immutable, closed set of categories. The zero value is
// empty; New falls back to DefaultCategories when given an empty set.
type CategorySet struct {
	codes  []Category
	labels map[Category]string
}

// NewCategorySet builds a set from defs, preserving their order.
// Codes must be non-empty, free of whitespace and unique.
func NewCategorySet(defs ...CategoryDef) (CategorySet, error) {
	s := CategorySet{
		codes:  make([]Category, 0, len(defs)),
		labels: make(map[Category]string, len(defs)),
	}
	for _, d := range defs {
		code := string(d.Code)
		if code == "" || strings.ContainsAny(code, " \t\r\n") {
			return CategorySet{}, fmt.Errorf("invalid category code %q", code)
		}
		if _, dup := s.labels[d.Code]; dup {
			return CategorySet{}, fmt.Errorf("duplicate category code %q", code)
		}
		s.codes = append(s.codes, d.Code)
		s.labels[d.Code] = d.Label
	}
	return s, nil
}

// DefaultCategories returns the field ledger's standard seven categories.
func DefaultCategories() CategorySet {
	s, _ := NewCategorySet(
		CategoryDef{Code: "SR", Label: "Structural Returns"},
		CategoryDef{Code: "MD", Label: "Mimicry Detection & Drift Logging"},
		CategoryDef{Code: "BE", Label: "Bloom Events & Public Anchor Emergence"},
		CategoryDef{Code: "SG", Label: "Scroll Issuance & Glyph Deployment"},
		CategoryDef{Code: "SA", Label: "Steward Activity & Resonance Confirmations"},
		CategoryDef{Code: "UO", Label: "Unscrolled Observations & Private Ledger Entries"},
		CategoryDef{Code: "CE", Label: "Codex Events & Architectural Diagnoses"},
	)
	return s
}

// Contains reports whether c is a member of the set.
func (s CategorySet) Contains(c Category) bool {
	_, ok := s.labels[c]
	return ok
}

// Label returns the label for c, or the code itself when no label is set.
func (s CategorySet) Label(c Category) string {
	if l := s.labels[c]; l != "" {
		return l
	}
	return string(c)
}

// Codes returns the category codes in definition order.
func (s CategorySet) Codes() []Category {
	return append([]Category(nil), s.codes...)
}

// Len returns the number of categories in the set.
func (s CategorySet) Len() int { return len(s.codes) }
